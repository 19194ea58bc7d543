// Package router decides which view a client sees for a given AuthState.
package router

import (
	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/sessionstore"
)

type View string

const (
	ViewLoading      View = "loading"
	ViewLogin        View = "login"
	ViewAccessDenied View = "access-denied"
	ViewDashboard    View = "dashboard"
	ViewInvalidRole  View = "invalid-role"
)

// ActionSignOut is offered on views the user can only leave by signing out.
const ActionSignOut = "sign-out"

const (
	DefaultLoginPath = "/auth"

	MsgAccessDenied = "your account has no profile, access is denied"
	MsgInvalidRole  = "your account has a role this application does not recognise"
)

// Decision is the outcome of one routing pass. Role and Profile are set only
// for ViewDashboard, RedirectTo only for ViewLogin.
type Decision struct {
	View       View          `json:"view"`
	Role       core.Role     `json:"role,omitempty"`
	RedirectTo string        `json:"redirectTo,omitempty"`
	Profile    *core.Profile `json:"profile,omitempty"`
	Message    string        `json:"message,omitempty"`
	Actions    []string      `json:"actions,omitempty"`
}

type Router struct {
	loginPath string
}

func New(loginPath string) *Router {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &Router{loginPath: loginPath}
}

func (r *Router) LoginPath() string { return r.loginPath }

// Route has no side effects. A dashboard is only reachable through a
// Member identity, so an unrecognised role can never fall through to one.
func (r *Router) Route(st sessionstore.AuthState) Decision {
	if st.Loading {
		return Decision{View: ViewLoading}
	}

	switch id := st.Identity().(type) {
	case sessionstore.Anonymous:
		return Decision{View: ViewLogin, RedirectTo: r.loginPath, Message: st.Error}
	case sessionstore.Unresolved:
		msg := id.Err
		if msg == "" {
			msg = MsgAccessDenied
		}
		return Decision{View: ViewAccessDenied, Message: msg, Actions: []string{ActionSignOut}}
	case sessionstore.Member:
		return Decision{View: ViewDashboard, Role: id.Role, Profile: id.Profile}
	case sessionstore.Unrecognized:
		return Decision{View: ViewInvalidRole, Message: MsgInvalidRole, Actions: []string{ActionSignOut}}
	}
	// unreachable while Identity stays sealed
	return Decision{View: ViewAccessDenied, Message: MsgAccessDenied, Actions: []string{ActionSignOut}}
}
