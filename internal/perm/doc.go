// Package perm implements POSIX-style access decisions for HTTP handlers.
//
// A permission rule is expressed as a Spec: either a chmod triple
// (a packed 3-digit code where each digit enables user, group or other
// access) or an owner/group pair. The Engine evaluates a Spec against
// the identity of the current requester and returns a grant or deny
// decision:
//
//	engine := perm.NewEngine(
//	    perm.WithGroupResolver(resolver),
//	    perm.WithLogger(logger),
//	)
//
//	guard, err := engine.Guard(perm.Spec{Mode: 110, Owner: "bob", Group: "eng"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	router.GET("/reports", guard, reportsHandler)
//
// Group membership is resolved through a caller-supplied GroupResolver.
// Deployments with expensive resolvers can wrap the resolver in a
// Membership cache backed by a shared key-value store:
//
//	membership, err := perm.NewMembership(resolver, st, time.Hour)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine := perm.NewEngine(perm.WithMembership(membership))
//
// Spec validation happens once, when a guard is registered; a
// misconfigured rule fails at startup rather than on first request.
// Resolver and store failures are propagated to the caller and are
// never converted into a deny.
package perm
