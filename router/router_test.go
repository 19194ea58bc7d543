package router

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/sessionstore"
)

func TestRouter_Route(t *testing.T) {
	user := &core.User{ID: "u1"}
	profile := func(role string) *core.Profile { return &core.Profile{ID: "u1", FullName: "Ana", Role: role} }

	tests := []struct {
		name        string
		state       sessionstore.AuthState
		wantView    View
		wantRole    core.Role
		wantMessage string
		wantSignOut bool
	}{
		{
			name:     "loading wins over everything else",
			state:    sessionstore.AuthState{User: user, Profile: profile("host"), Loading: true},
			wantView: ViewLoading,
		},
		{
			name:     "no user redirects to login",
			state:    sessionstore.AuthState{},
			wantView: ViewLogin,
		},
		{
			name:        "forced sign-out keeps its reason on the login redirect",
			state:       sessionstore.AuthState{Error: sessionstore.MsgProfileNotFound},
			wantView:    ViewLogin,
			wantMessage: sessionstore.MsgProfileNotFound,
		},
		{
			name:        "user without profile is denied",
			state:       sessionstore.AuthState{User: user, Error: sessionstore.MsgProfileFailed},
			wantView:    ViewAccessDenied,
			wantMessage: sessionstore.MsgProfileFailed,
			wantSignOut: true,
		},
		{
			name:        "user without profile or error is still denied",
			state:       sessionstore.AuthState{User: user},
			wantView:    ViewAccessDenied,
			wantMessage: MsgAccessDenied,
			wantSignOut: true,
		},
		{name: "host", state: sessionstore.AuthState{User: user, Profile: profile("host")}, wantView: ViewDashboard, wantRole: core.RoleHost},
		{name: "coordinator", state: sessionstore.AuthState{User: user, Profile: profile("coordinator")}, wantView: ViewDashboard, wantRole: core.RoleCoordinator},
		{name: "tourist", state: sessionstore.AuthState{User: user, Profile: profile("tourist")}, wantView: ViewDashboard, wantRole: core.RoleTourist},
		{
			name:        "unknown role gets the invalid-role view",
			state:       sessionstore.AuthState{User: user, Profile: profile("admin")},
			wantView:    ViewInvalidRole,
			wantMessage: MsgInvalidRole,
			wantSignOut: true,
		},
		{
			name:        "empty role is not a default",
			state:       sessionstore.AuthState{User: user, Profile: profile("")},
			wantView:    ViewInvalidRole,
			wantMessage: MsgInvalidRole,
			wantSignOut: true,
		},
	}

	r := New("")
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Act
			got := r.Route(test.state)

			// Assert
			if got.View != test.wantView {
				t.Fatalf("Route() view = %q, want %q", got.View, test.wantView)
			}
			if got.Role != test.wantRole {
				t.Errorf("Route() role = %q, want %q", got.Role, test.wantRole)
			}
			if got.Message != test.wantMessage {
				t.Errorf("Route() message = %q, want %q", got.Message, test.wantMessage)
			}
			if hasSignOut(got) != test.wantSignOut {
				t.Errorf("Route() actions = %v", got.Actions)
			}
			if got.View == ViewLogin && got.RedirectTo != DefaultLoginPath {
				t.Errorf("Route() redirect = %q, want %q", got.RedirectTo, DefaultLoginPath)
			}
			if got.View == ViewDashboard && got.Profile != test.state.Profile {
				t.Error("Route() dashboard should carry the profile")
			}
		})
	}
}

func TestRouter_CustomLoginPath(t *testing.T) {
	got := New("/login").Route(sessionstore.AuthState{})

	if got.RedirectTo != "/login" {
		t.Fatalf("RedirectTo = %q, want /login", got.RedirectTo)
	}
}

// Requirement: no role outside host, coordinator and tourist ever reaches a dashboard.
func TestRouter_UnknownRolesNeverGetADashboard(t *testing.T) {
	r := New("")
	rapid.Check(t, func(t *rapid.T) {
		role := rapid.String().Filter(func(s string) bool {
			_, err := core.ParseRole(s)
			return err != nil
		}).Draw(t, "role")
		st := sessionstore.AuthState{
			User:    &core.User{ID: "u"},
			Profile: &core.Profile{ID: "u", Role: role},
		}

		got := r.Route(st)

		if got.View != ViewInvalidRole {
			t.Fatalf("role %q routed to %q", role, got.View)
		}
		if got.Role != "" || got.Profile != nil {
			t.Fatalf("role %q leaked dashboard data: %+v", role, got)
		}
	})
}

func hasSignOut(d Decision) bool {
	for _, a := range d.Actions {
		if a == ActionSignOut {
			return true
		}
	}
	return false
}
