package perm

// Spec is a permission rule attached to a guarded operation.
//
// Two forms exist. The chmod form packs three access bits into Mode as
// a 3-digit code: the hundreds digit enables owner access, the tens
// digit enables group access and the ones digit enables access for
// everyone. Valid codes are 1, 10, 11, 100, 101, 110 and 111. The
// owner/group form leaves Mode at zero and grants access to the named
// Owner, to members of the named Group, or both.
type Spec struct {
	// Mode is the packed chmod code. Zero selects the owner/group form.
	Mode int

	// Owner is the identity granted owner access.
	Owner string

	// Group is the group whose members are granted group access.
	Group string
}

// bits holds the three decoded access bits of a Spec.
type bits struct {
	owner bool
	group bool
	other bool
}

// decode returns the access bits of the spec. For the owner/group form
// a bit is set whenever the corresponding identity is present.
func (s Spec) decode() bits {
	if s.Mode != 0 {
		return bits{
			owner: s.Mode/100 > 0,
			group: (s.Mode/10)%10 > 0,
			other: s.Mode%10 > 0,
		}
	}
	return bits{
		owner: s.Owner != "",
		group: s.Group != "",
	}
}

// validModes is the set of well-formed chmod codes.
var validModes = map[int]bool{
	1:   true,
	10:  true,
	11:  true,
	100: true,
	101: true,
	110: true,
	111: true,
}

// Validate checks the spec for well-formedness. It is called once at
// guard registration; a rule that fails here must not serve traffic.
func (s Spec) Validate() error {
	if s.Mode != 0 {
		if !validModes[s.Mode] {
			return invalidSpecError("mode %d is not a valid chmod code", s.Mode)
		}
		// An unset owner would compare equal to an unset request
		// identity and grant access to anonymous requesters.
		if s.Mode/100 > 0 && s.Owner == "" {
			return invalidSpecError("mode %d grants owner access but no owner is set", s.Mode)
		}
		if (s.Mode/10)%10 > 0 && s.Group == "" {
			return invalidSpecError("mode %d grants group access but no group is set", s.Mode)
		}
		return nil
	}

	if s.Owner == "" && s.Group == "" {
		return invalidSpecError("at least one of owner and group must be set")
	}

	return nil
}
