package fiber

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/pkg/validate"
)

func (a *Adapter) signup(c fiber.Ctx) error {
	var input core.SignUpInput
	if err := c.Bind().Body(&input); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}

	result, err := a.backend.Auth.SignUp(c.Context(), input, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(result)
}

func (a *Adapter) signin(c fiber.Ctx) error {
	var input core.SignInInput
	if err := c.Bind().Body(&input); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}

	result, err := a.backend.Auth.SignIn(c.Context(), input, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.Status(http.StatusOK).JSON(result)
}

func (a *Adapter) signout(c fiber.Ctx) error {
	if err := a.backend.Auth.SignOut(c.Context(), currentToken(c)); err != nil {
		return handleAuthError(c, err)
	}

	c.ClearCookie(AuthCookie)
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "signed out successfully",
	})
}

func (a *Adapter) session(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(core.SessionData{
		User:    currentUser(c),
		Session: currentSession(c),
	})
}

func (a *Adapter) refresh(c fiber.Ctx) error {
	result, err := a.backend.Auth.Refresh(c.Context(), currentToken(c))
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.Status(http.StatusOK).JSON(result)
}

func (a *Adapter) changePassword(c fiber.Ctx) error {
	var input core.ChangePasswordInput
	if err := c.Bind().Body(&input); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}

	if err := a.backend.Auth.ChangePassword(c.Context(), currentUser(c).ID, input); err != nil {
		return handleAuthError(c, err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "password changed",
	})
}

func (a *Adapter) profile(c fiber.Ctx) error {
	profile, err := a.backend.Auth.GetProfile(c.Context(), currentUser(c).ID)
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.Status(http.StatusOK).JSON(profile)
}

func (a *Adapter) updateProfile(c fiber.Ctx) error {
	var update core.ProfileUpdate
	if err := c.Bind().Body(&update); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}

	profile, err := a.backend.Auth.UpdateProfile(c.Context(), currentUser(c).ID, update)
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.Status(http.StatusOK).JSON(profile)
}

var errInvalidBody = errors.New("invalid request body")

// handleAuthError maps authentication errors to appropriate HTTP responses
func handleAuthError(c fiber.Ctx, err error) error {
	status := mapErrorToStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return writeError(c, status, err)
}

func writeError(c fiber.Ctx, status int, err error) error {
	resp := core.ErrorResponse{Error: err.Error(), Code: status}
	if status == http.StatusInternalServerError {
		// storage details stay in the logs
		resp.Error = http.StatusText(status)
	}
	var weak *validate.WeakPasswordError
	if errors.As(err, &weak) {
		resp.Error = core.ErrPasswordTooWeak.Error()
		resp.Message = weak.Strength.Label
		resp.Details = weak.Strength.Feedback
	}
	return c.Status(status).JSON(resp)
}

// mapErrorToStatus maps core error types to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrInvalidToken),
		errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrSessionExpired),
		errors.Is(err, core.ErrMissingAuthHeader),
		errors.Is(err, core.ErrInvalidAuthHeader):
		return http.StatusUnauthorized

	case errors.Is(err, core.ErrEmailRequired),
		errors.Is(err, core.ErrPasswordRequired),
		errors.Is(err, core.ErrPasswordTooShort),
		errors.Is(err, core.ErrPasswordTooLong),
		errors.Is(err, core.ErrPasswordTooWeak),
		errors.Is(err, core.ErrInvalidEmail),
		errors.Is(err, core.ErrFullNameRequired),
		errors.Is(err, core.ErrInvalidRole),
		errors.Is(err, errInvalidBody):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrUserExists):
		return http.StatusConflict

	case errors.Is(err, core.ErrProfileNotFound):
		return http.StatusNotFound

	case errors.Is(err, core.ErrUnknownRole):
		return http.StatusForbidden

	case errors.Is(err, core.ErrProfileLookupTimeout):
		return http.StatusGatewayTimeout

	case errors.Is(err, core.ErrNotImplemented):
		return http.StatusNotImplemented

	default:
		return http.StatusInternalServerError
	}
}
