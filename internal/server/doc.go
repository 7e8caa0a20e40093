// Package server provides the HTTP server exposing guarded routes.
//
// The server wires the permission engine into a gin router: every route
// from the configuration is registered behind an access guard built
// from its rule, and the requester identity is read from a trusted
// header. Health and Prometheus metrics endpoints are served alongside
// the guarded routes.
package server
