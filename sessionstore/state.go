package sessionstore

import (
	"github.com/jadapache/raices-vivas/core"
)

// AuthState is the snapshot readers see. The store is its only writer.
//
// If User is set and Loading is false, then Profile or Error is set.
type AuthState struct {
	User    *core.User    `json:"user"`
	Profile *core.Profile `json:"profile"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"`
}

// SignedOut reports the terminal state with no user.
func (s AuthState) SignedOut() bool { return !s.Loading && s.User == nil }

// Identity classifies the state so callers cannot reach a role without
// going through ParseRole.
func (s AuthState) Identity() Identity {
	switch {
	case s.User == nil:
		return Anonymous{}
	case s.Profile == nil:
		return Unresolved{User: s.User, Err: s.Error}
	}
	role, err := core.ParseRole(s.Profile.Role)
	if err != nil {
		return Unrecognized{User: s.User, Profile: s.Profile, RawRole: s.Profile.Role}
	}
	return Member{User: s.User, Profile: s.Profile, Role: role}
}

// Identity is one of Anonymous, Unresolved, Member or Unrecognized.
type Identity interface {
	identity()
}

// Anonymous has no user.
type Anonymous struct{}

// Unresolved has a user but no profile: either still loading or failed.
type Unresolved struct {
	User *core.User
	Err  string
}

// Member is a user whose profile carries a known role.
type Member struct {
	User    *core.User
	Profile *core.Profile
	Role    core.Role
}

// Unrecognized is a user whose stored role is outside the known set.
type Unrecognized struct {
	User    *core.User
	Profile *core.Profile
	RawRole string
}

func (Anonymous) identity()    {}
func (Unresolved) identity()   {}
func (Member) identity()       {}
func (Unrecognized) identity() {}
