package fiber

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/pkg/crypto"
	"github.com/jadapache/raices-vivas/pkg/events"
	"github.com/jadapache/raices-vivas/pkg/logging"
	"github.com/jadapache/raices-vivas/pkg/memstore"
	"github.com/jadapache/raices-vivas/pkg/metrics"
	"github.com/jadapache/raices-vivas/pkg/visibility"
	"github.com/jadapache/raices-vivas/router"
	"github.com/jadapache/raices-vivas/services"
	"github.com/jadapache/raices-vivas/sessionstore"
)

const testPassword = "SecurePass123!"

var testTimeout = fiber.TestConfig{Timeout: 5 * time.Second}

type harness struct {
	app      *fiber.App
	adapter  *Adapter
	storage  *memstore.Store
	broker   *events.Broker
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logging.Discard()
	h := &harness{
		app:      fiber.New(),
		storage:  memstore.New(),
		broker:   events.NewBroker(logger),
		registry: prometheus.NewRegistry(),
	}
	m := metrics.New(h.registry)
	sessions := services.NewSessionManager(core.SessionConfig{MaxAge: time.Hour}, h.storage, nil)
	auth := services.NewAuthService(h.storage, sessions,
		&crypto.Argon2{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		services.WithEvents(h.broker),
		services.WithLogger(logger),
		services.WithMetrics(m),
	)

	h.adapter = New(h.app, WithGatherer(h.registry), WithRouteMetrics(m), WithVersion("test"))
	err := h.adapter.RegisterRoutes(&core.App{
		Auth:           auth,
		Events:         h.broker,
		Visibility:     visibility.NewHub(),
		ProfileTimeout: time.Second,
		Logger:         logger,
		Metrics:        m,
	})
	require.NoError(t, err)
	t.Cleanup(h.adapter.Shutdown)
	return h
}

func (h *harness) do(t *testing.T, method, target, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := h.app.Test(req, testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) signUp(t *testing.T, email, role string) core.AuthResult {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/auth/sign-up", "", core.SignUpInput{
		Email:    email,
		Password: testPassword,
		FullName: "Rosa Quispe",
		Role:     role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result core.AuthResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.NotEmpty(t, result.Token)
	return result
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// Requirement: sign-up and sign-in issue a token that opens protected routes.
func TestAuthRoutes_SignUpSignInAndSession(t *testing.T) {
	h := newHarness(t)

	signedUp := h.signUp(t, "rosa@example.com", "host")
	assert.Equal(t, "host", signedUp.Profile.Role)

	resp := h.do(t, http.MethodPost, "/api/auth/sign-in", "", core.SignInInput{
		Email:    "rosa@example.com",
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	signedIn := decode[core.AuthResult](t, resp)

	resp = h.do(t, http.MethodGet, "/api/auth/session", signedIn.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decode[core.SessionData](t, resp)
	assert.Equal(t, signedUp.User.ID, data.User.ID)
	assert.Equal(t, signedIn.Session.ID, data.Session.ID)
}

// Requirement: auth failures surface as ErrorResponse bodies with the
// mapped status.
func TestAuthRoutes_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		token      string
		body       any
		wantStatus int
	}{
		{
			name:       "protected route without token",
			method:     http.MethodGet,
			target:     "/api/auth/session",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "protected route with unknown token",
			method:     http.MethodGet,
			target:     "/api/auth/profile",
			token:      "not-a-session",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "sign-up with a role outside the closed set",
			method: http.MethodPost,
			target: "/api/auth/sign-up",
			body: core.SignUpInput{
				Email: "x@example.com", Password: testPassword, FullName: "X", Role: "admin",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "sign-in with wrong credentials",
			method:     http.MethodPost,
			target:     "/api/auth/sign-in",
			body:       core.SignInInput{Email: "nobody@example.com", Password: testPassword},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t)

			// Act
			resp := h.do(t, test.method, test.target, test.token, test.body)

			// Assert
			require.Equal(t, test.wantStatus, resp.StatusCode)
			body := decode[core.ErrorResponse](t, resp)
			assert.Equal(t, test.wantStatus, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

// Requirement: a signed-out token no longer opens protected routes.
func TestAuthRoutes_SignOut(t *testing.T) {
	h := newHarness(t)
	result := h.signUp(t, "luis@example.com", "tourist")

	resp := h.do(t, http.MethodPost, "/api/auth/sign-out", result.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/auth/session", result.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Requirement: profile edits never touch the role.
func TestAuthRoutes_UpdateProfile(t *testing.T) {
	h := newHarness(t)
	result := h.signUp(t, "eva@example.com", "coordinator")

	resp := h.do(t, http.MethodPatch, "/api/auth/profile", result.Token, map[string]string{
		"fullName": "  Eva Mamani ",
		"role":     "host",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decode[core.Profile](t, resp)

	assert.Equal(t, "Eva Mamani", profile.FullName)
	assert.Equal(t, "coordinator", profile.Role)
}

// Requirement: the dashboard routes every caller to exactly one view.
func TestDashboard(t *testing.T) {
	tests := []struct {
		name         string
		role         string
		setup        func(h *harness, userID string)
		anonymous    bool
		wantStatus   int
		wantView     router.View
		wantRole     core.Role
		wantLocation string
		wantReason   string
	}{
		{
			name:         "anonymous caller is sent to login",
			anonymous:    true,
			wantStatus:   http.StatusSeeOther,
			wantLocation: router.DefaultLoginPath,
		},
		{
			name:       "host sees the host dashboard",
			role:       "host",
			wantStatus: http.StatusOK,
			wantView:   router.ViewDashboard,
			wantRole:   core.RoleHost,
		},
		{
			name:       "tourist sees the tourist dashboard",
			role:       "tourist",
			wantStatus: http.StatusOK,
			wantView:   router.ViewDashboard,
			wantRole:   core.RoleTourist,
		},
		{
			name: "unknown stored role is refused",
			role: "host",
			setup: func(h *harness, userID string) {
				p, _ := h.storage.GetProfileByID(context.Background(), userID)
				p.Role = "admin"
				h.storage.PutProfile(p)
			},
			wantStatus: http.StatusForbidden,
			wantView:   router.ViewInvalidRole,
		},
		{
			name: "missing profile forces sign-out with a reason",
			role: "coordinator",
			setup: func(h *harness, userID string) {
				h.storage.RemoveProfile(userID)
			},
			wantStatus:   http.StatusSeeOther,
			wantLocation: router.DefaultLoginPath,
			wantReason:   sessionstore.MsgProfileNotFound,
		},
	}

	for i, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t)
			token := ""
			if !test.anonymous {
				result := h.signUp(t, fmt.Sprintf("user%d@example.com", i), test.role)
				token = result.Token
				if test.setup != nil {
					test.setup(h, result.User.ID)
				}
			}

			// Act
			resp := h.do(t, http.MethodGet, "/dashboard", token, nil)

			// Assert
			require.Equal(t, test.wantStatus, resp.StatusCode)
			if test.wantLocation != "" {
				loc, err := url.Parse(resp.Header.Get(fiber.HeaderLocation))
				require.NoError(t, err)
				assert.Equal(t, test.wantLocation, loc.Path)
				assert.Equal(t, test.wantReason, loc.Query().Get("reason"))
				return
			}
			d := decode[router.Decision](t, resp)
			assert.Equal(t, test.wantView, d.View)
			assert.Equal(t, test.wantRole, d.Role)
			if d.View != router.ViewDashboard {
				assert.Contains(t, d.Actions, router.ActionSignOut)
			}
		})
	}
}

// Requirement: a forced sign-out ends the backend session, not just the view.
func TestDashboard_MissingProfileEndsSession(t *testing.T) {
	h := newHarness(t)
	result := h.signUp(t, "ana@example.com", "host")
	h.storage.RemoveProfile(result.User.ID)

	resp := h.do(t, http.MethodGet, "/dashboard", result.Token, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/auth/session", result.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func readDecisions(t *testing.T, r io.Reader) []router.Decision {
	t.Helper()
	var out []router.Decision
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var d router.Decision
		require.NoError(t, json.Unmarshal([]byte(data), &d))
		out = append(out, d)
	}
	require.NoError(t, scanner.Err())
	return out
}

// Requirement: the stream shows the error while the user is still attached,
// then ends on the login view carrying the same message.
func TestDashboardStream_MissingProfile(t *testing.T) {
	// Arrange
	h := newHarness(t)
	result := h.signUp(t, "mario@example.com", "host")
	h.storage.RemoveProfile(result.User.ID)

	// Act
	resp := h.do(t, http.MethodGet, "/dashboard/stream", result.Token, nil)

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))

	decisions := readDecisions(t, resp.Body)
	require.NotEmpty(t, decisions)
	assert.Equal(t, router.ViewLoading, decisions[0].View)

	last := decisions[len(decisions)-1]
	assert.Equal(t, router.ViewLogin, last.View)
	assert.Equal(t, sessionstore.MsgProfileNotFound, last.Message)

	var sawDenied bool
	for _, d := range decisions {
		assert.NotEqual(t, router.ViewDashboard, d.View)
		if d.View == router.ViewAccessDenied {
			sawDenied = true
			assert.Equal(t, sessionstore.MsgProfileNotFound, d.Message)
		}
	}
	assert.True(t, sawDenied, "stream should show access-denied before login")
}

// openStream starts a dashboard stream in the background. The response
// arrives once the stream has ended.
func (h *harness) openStream(t *testing.T, token string) <-chan *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/dashboard/stream", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	out := make(chan *http.Response, 1)
	go func() {
		defer close(out)
		resp, err := h.app.Test(req, testTimeout)
		if err != nil {
			t.Errorf("dashboard stream: %v", err)
			return
		}
		out <- resp
	}()
	return out
}

func awaitStream(t *testing.T, ch <-chan *http.Response) *http.Response {
	t.Helper()
	select {
	case resp, ok := <-ch:
		require.True(t, ok, "dashboard stream failed")
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	case <-time.After(2 * testTimeout.Timeout):
		t.Fatal("dashboard stream did not end")
		return nil
	}
}

// decisionCount reads the route decision counter for view.
func (h *harness) decisionCount(view router.View) float64 {
	families, err := h.registry.Gather()
	if err != nil {
		return 0
	}
	var n float64
	for _, f := range families {
		if f.GetName() != "raices_route_decisions_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "view" && l.GetValue() == string(view) {
					n += m.GetCounter().GetValue()
				}
			}
		}
	}
	return n
}

// waitForDashboard blocks until an open stream has shown the dashboard, so
// its store is mounted and listening.
func (h *harness) waitForDashboard(t *testing.T, sessionID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.broker.Subscribers(sessionID) > 0 && h.decisionCount(router.ViewDashboard) > 0
	}, 3*time.Second, 10*time.Millisecond)
}

// Requirement: signing out from another request ends an open stream on the
// login view.
func TestDashboardStream_SignOutElsewhere(t *testing.T) {
	// Arrange
	h := newHarness(t)
	result := h.signUp(t, "lucia@example.com", "tourist")
	stream := h.openStream(t, result.Token)
	h.waitForDashboard(t, result.Session.ID)

	// Act
	resp := h.do(t, http.MethodPost, "/api/auth/sign-out", result.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Assert
	streamed := awaitStream(t, stream)
	require.Equal(t, http.StatusOK, streamed.StatusCode)
	decisions := readDecisions(t, streamed.Body)
	require.NotEmpty(t, decisions)

	var sawDashboard bool
	for _, d := range decisions {
		if d.View == router.ViewDashboard {
			sawDashboard = true
			assert.Equal(t, core.RoleTourist, d.Role)
		}
	}
	assert.True(t, sawDashboard, "stream should show the dashboard before sign-out")

	last := decisions[len(decisions)-1]
	assert.Equal(t, router.ViewLogin, last.View)
	assert.Empty(t, last.Message)
	assert.Zero(t, h.broker.Subscribers(result.Session.ID))
}

// Requirement: a visibility ping makes an open stream re-read the profile;
// a profile removed meanwhile ends the session with a reason.
func TestDashboardStream_VisibilityRecheck(t *testing.T) {
	// Arrange
	h := newHarness(t)
	result := h.signUp(t, "tomas@example.com", "host")
	stream := h.openStream(t, result.Token)
	h.waitForDashboard(t, result.Session.ID)
	h.storage.RemoveProfile(result.User.ID)

	// Act
	resp := h.do(t, http.MethodPost, "/api/auth/visibility", result.Token, nil)

	// Assert
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, decode[map[string]int](t, resp)["listeners"])

	streamed := awaitStream(t, stream)
	decisions := readDecisions(t, streamed.Body)
	require.NotEmpty(t, decisions)

	views := make([]router.View, 0, len(decisions))
	for _, d := range decisions {
		views = append(views, d.View)
	}
	dashboardAt := indexOf(views, router.ViewDashboard)
	deniedAt := indexOf(views, router.ViewAccessDenied)
	require.GreaterOrEqual(t, dashboardAt, 0, "views %v", views)
	require.Greater(t, deniedAt, dashboardAt, "views %v", views)
	assert.Equal(t, sessionstore.MsgProfileNotFound, decisions[deniedAt].Message)

	last := decisions[len(decisions)-1]
	assert.Equal(t, router.ViewLogin, last.View)
	assert.Equal(t, sessionstore.MsgProfileNotFound, last.Message)

	resp = h.do(t, http.MethodGet, "/api/auth/session", result.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func indexOf(views []router.View, v router.View) int {
	for i, got := range views {
		if got == v {
			return i
		}
	}
	return -1
}

// Requirement: an anonymous stream request is redirected like the page.
func TestDashboardStream_Anonymous(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/dashboard/stream", "", nil)

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, router.DefaultLoginPath, resp.Header.Get(fiber.HeaderLocation))
}

// Requirement: the visibility ping reports how many stores were woken.
func TestVisibility_NoListeners(t *testing.T) {
	h := newHarness(t)
	result := h.signUp(t, "sara@example.com", "tourist")

	resp := h.do(t, http.MethodPost, "/api/auth/visibility", result.Token, nil)

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decode[map[string]int](t, resp)
	assert.Equal(t, 0, body["listeners"])
}

func TestOpenAPIDocument(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/auth/openapi.json", "", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode[map[string]any](t, resp)
	assert.Contains(t, doc, "openapi")
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/auth/sign-up")
	assert.Contains(t, paths, "/api/auth/profile")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/dashboard", "", nil)

	resp := h.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `raices_route_decisions_total{view="login"} 1`)
}

// Requirement: mapErrorToStatus maps authentication errors to correct HTTP status codes
func TestMapErrorToStatus_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "maps ErrInvalidCredentials to 401", err: core.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized},
		{name: "maps ErrUserNotFound to 401", err: core.ErrUserNotFound, wantStatus: http.StatusUnauthorized},
		{name: "maps ErrInvalidToken to 401", err: core.ErrInvalidToken, wantStatus: http.StatusUnauthorized},
		{name: "maps ErrSessionExpired to 401", err: core.ErrSessionExpired, wantStatus: http.StatusUnauthorized},
		{name: "maps ErrEmailRequired to 400", err: core.ErrEmailRequired, wantStatus: http.StatusBadRequest},
		{name: "maps wrapped ErrInvalidRole to 400", err: fmt.Errorf("%w: %v", core.ErrInvalidRole, "admin"), wantStatus: http.StatusBadRequest},
		{name: "maps ErrUserExists to 409", err: core.ErrUserExists, wantStatus: http.StatusConflict},
		{name: "maps ErrProfileNotFound to 404", err: core.ErrProfileNotFound, wantStatus: http.StatusNotFound},
		{name: "maps ErrUnknownRole to 403", err: core.ErrUnknownRole, wantStatus: http.StatusForbidden},
		{name: "maps ErrProfileLookupTimeout to 504", err: core.ErrProfileLookupTimeout, wantStatus: http.StatusGatewayTimeout},
		{name: "defaults unknown errors to 500", err: errors.New("unknown error"), wantStatus: http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Act
			status := mapErrorToStatus(test.err)

			// Assert
			if status != test.wantStatus {
				t.Errorf("mapErrorToStatus should map error to %d; got %d", test.wantStatus, status)
			}
		})
	}
}
