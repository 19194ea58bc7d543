package fiber

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/jadapache/raices-vivas/core"
)

// Locals keys set by the protected middleware.
const (
	LocalUser    = "user"
	LocalSession = "session"
	LocalToken   = "token"
)

// Protected validates the bearer token or auth cookie and stores the user
// and session in the context for downstream handlers.
func Protected(auth core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := extractToken(c)
		if token == "" {
			return writeError(c, fiber.StatusUnauthorized, core.ErrMissingAuthHeader)
		}

		data, err := auth.Authenticate(c.Context(), token)
		if err != nil {
			return handleAuthError(c, err)
		}

		c.Locals(LocalUser, data.User)
		c.Locals(LocalSession, data.Session)
		c.Locals(LocalToken, token)

		return c.Next()
	}
}

func (a *Adapter) requireAuth(c fiber.Ctx) error {
	return Protected(a.backend.Auth)(c)
}

// extractToken checks the Authorization header (Bearer token) first, then
// falls back to the cookie.
func extractToken(c fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Cookies(AuthCookie)
}

func currentUser(c fiber.Ctx) *core.User {
	u, _ := c.Locals(LocalUser).(*core.User)
	return u
}

func currentSession(c fiber.Ctx) *core.Session {
	s, _ := c.Locals(LocalSession).(*core.Session)
	return s
}

func currentToken(c fiber.Ctx) string {
	t, _ := c.Locals(LocalToken).(string)
	return t
}
