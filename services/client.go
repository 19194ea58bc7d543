package services

import (
	"context"
	"errors"

	"github.com/jadapache/raices-vivas/core"
)

// ClientPorts are the backend operations one client's session store needs,
// bound to the session that client holds.
type ClientPorts struct {
	Sessions core.SessionGetter
	Profiles core.ProfileLookup
	SignOut  core.SignOuter
}

// PortsForSession binds auth to a single session id. A session that is gone
// or expired reads as "no session"; signing out twice is harmless.
func PortsForSession(auth core.AuthHandler, sessionID string) ClientPorts {
	return ClientPorts{
		Sessions: core.SessionGetterFunc(func(ctx context.Context) (*core.SessionData, error) {
			data, err := auth.GetSessionByID(ctx, sessionID)
			if errors.Is(err, core.ErrSessionNotFound) || errors.Is(err, core.ErrSessionExpired) {
				return nil, nil
			}
			return data, err
		}),
		Profiles: profileLookup{auth},
		SignOut: core.SignOutFunc(func(ctx context.Context) error {
			return auth.SignOutSession(ctx, sessionID)
		}),
	}
}

type profileLookup struct {
	auth core.AuthHandler
}

func (p profileLookup) GetProfileByID(ctx context.Context, id string) (*core.Profile, error) {
	return p.auth.GetProfile(ctx, id)
}
