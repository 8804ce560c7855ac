package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lanternlabs/lantern/internal/authform"
	"github.com/lanternlabs/lantern/internal/provider"
	"github.com/lanternlabs/lantern/internal/telemetry"
)

// =============================================================================
// Mocks
// =============================================================================

// mockRenderer records what would be rendered instead of executing templates.
type mockRenderer struct {
	lastName string
	lastData interface{}
	partial  bool
}

func (m *mockRenderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	m.lastName, m.lastData, m.partial = name, data, false
	w.WriteHeader(http.StatusOK)
}

func (m *mockRenderer) RenderPartial(w http.ResponseWriter, name string, data interface{}) {
	m.lastName, m.lastData, m.partial = name, data, true
	w.WriteHeader(http.StatusOK)
}

func (m *mockRenderer) formView(t *testing.T) AuthFormView {
	t.Helper()
	view, ok := m.lastData.(AuthFormView)
	if !ok {
		t.Fatalf("rendered data is %T, want AuthFormView", m.lastData)
	}
	return view
}

type mockProvider struct {
	SignUpFunc             func(ctx context.Context, email, password, redirectTo string) (*provider.AuthResult, error)
	SignInWithPasswordFunc func(ctx context.Context, email, password string) (*provider.AuthResult, error)
	SignInWithOTPFunc      func(ctx context.Context, email, redirectTo string) error
	SignInWithOAuthFunc    func(ctx context.Context, oauthProvider, redirectTo string) (string, error)
	GetSessionFunc         func(ctx context.Context, accessToken string) (*provider.Session, error)
	GetUserFunc            func(ctx context.Context, accessToken string) (*provider.User, error)
}

func (m *mockProvider) SignUp(ctx context.Context, email, password, redirectTo string) (*provider.AuthResult, error) {
	return m.SignUpFunc(ctx, email, password, redirectTo)
}

func (m *mockProvider) SignInWithPassword(ctx context.Context, email, password string) (*provider.AuthResult, error) {
	return m.SignInWithPasswordFunc(ctx, email, password)
}

func (m *mockProvider) SignInWithOTP(ctx context.Context, email, redirectTo string) error {
	return m.SignInWithOTPFunc(ctx, email, redirectTo)
}

func (m *mockProvider) SignInWithOAuth(ctx context.Context, oauthProvider, redirectTo string) (string, error) {
	return m.SignInWithOAuthFunc(ctx, oauthProvider, redirectTo)
}

func (m *mockProvider) GetSession(ctx context.Context, accessToken string) (*provider.Session, error) {
	return m.GetSessionFunc(ctx, accessToken)
}

func (m *mockProvider) GetUser(ctx context.Context, accessToken string) (*provider.User, error) {
	return m.GetUserFunc(ctx, accessToken)
}

type authFixture struct {
	handler  *AuthHandler
	renderer *mockRenderer
	registry *FormRegistry
	mux      *http.ServeMux
}

func newAuthFixture(t *testing.T, p provider.Client) *authFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewFormRegistry(time.Minute, time.Minute, logger)
	t.Cleanup(registry.Close)

	renderer := &mockRenderer{}
	h := NewAuthHandler(p, registry, renderer, nil, nil, logger, "https://example.com")

	mux := http.NewServeMux()
	h.RegisterRoutes(mux, nil)

	return &authFixture{handler: h, renderer: renderer, registry: registry, mux: mux}
}

func (f *authFixture) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// open creates a form via the HTTP surface and returns its ID.
func (f *authFixture) open(t *testing.T, mode string) string {
	t.Helper()
	rec := f.post(t, "/auth/open", url.Values{"mode": {mode}})
	if rec.Code != http.StatusOK {
		t.Fatalf("open status = %d", rec.Code)
	}
	view := f.renderer.formView(t)
	if view.FormID == "" {
		t.Fatal("open returned no form ID")
	}
	return view.FormID
}

func sessionResult(userID string) *provider.AuthResult {
	user := &provider.User{ID: userID, Email: "user@example.com"}
	return &provider.AuthResult{
		User:    user,
		Session: &provider.Session{AccessToken: "token", User: user},
	}
}

// =============================================================================
// POST /auth/open
// =============================================================================

func TestOpen(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})

	rec := f.post(t, "/auth/open", url.Values{"mode": {"login"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.renderer.lastName != "auth_form" || !f.renderer.partial {
		t.Errorf("rendered %q (partial=%v), want auth_form partial", f.renderer.lastName, f.renderer.partial)
	}

	view := f.renderer.formView(t)
	if view.Mode != "login" {
		t.Errorf("Mode = %q, want login", view.Mode)
	}
	if view.Title != "Log in" || view.SubmitLabel != "Log In" {
		t.Errorf("Title = %q, SubmitLabel = %q", view.Title, view.SubmitLabel)
	}
	if f.registry.Len() != 1 {
		t.Errorf("registry size = %d, want 1", f.registry.Len())
	}
}

func TestOpenDefaultsToSignup(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})
	f.post(t, "/auth/open", url.Values{})

	view := f.renderer.formView(t)
	if view.Mode != "signup" {
		t.Errorf("Mode = %q, want signup", view.Mode)
	}
	if view.Title != "Create your account" {
		t.Errorf("Title = %q", view.Title)
	}
}

func TestOpenRecordsCTAClick(t *testing.T) {
	sink := telemetry.NewChannelSink(4)
	dispatcher := telemetry.NewDispatcher(sink, 4)
	t.Cleanup(dispatcher.Close)

	logger := testLogger()
	registry := NewFormRegistry(time.Minute, time.Minute, logger)
	t.Cleanup(registry.Close)

	renderer := &mockRenderer{}
	h := NewAuthHandler(&mockProvider{}, registry, renderer, telemetry.NewAnalytics(dispatcher), nil, logger, "https://example.com")

	mux := http.NewServeMux()
	h.RegisterRoutes(mux, nil)

	form := url.Values{
		"mode":         {"signup"},
		"cta_location": {"hero"},
		"cta_target":   {"primary"},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/open", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	event := receiveCTAEvent(t, sink)
	if event.Name != "cta_clicked" {
		t.Errorf("event = %q, want cta_clicked", event.Name)
	}
	if event.Props["location"] != "hero" || event.Props["target"] != "primary" {
		t.Errorf("props = %v", event.Props)
	}
}

func TestOpenWithoutCTATagsRecordsNothing(t *testing.T) {
	sink := telemetry.NewChannelSink(4)
	dispatcher := telemetry.NewDispatcher(sink, 4)
	t.Cleanup(dispatcher.Close)

	logger := testLogger()
	registry := NewFormRegistry(time.Minute, time.Minute, logger)
	t.Cleanup(registry.Close)

	renderer := &mockRenderer{}
	h := NewAuthHandler(&mockProvider{}, registry, renderer, telemetry.NewAnalytics(dispatcher), nil, logger, "https://example.com")

	mux := http.NewServeMux()
	h.RegisterRoutes(mux, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/open", strings.NewReader("mode=login"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	select {
	case event := <-sink.Events():
		t.Fatalf("unexpected event %q for an untagged open", event.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOpenRejectsUnknownMode(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})
	rec := f.post(t, "/auth/open", url.Values{"mode": {"sso"}})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if f.registry.Len() != 0 {
		t.Error("rejected open must not register a form")
	}
}

// =============================================================================
// POST /auth/{id}/event
// =============================================================================

func TestEventFieldUpdate(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})
	id := f.open(t, "login")

	rec := f.post(t, "/auth/"+id+"/event", url.Values{
		"field": {"email"},
		"value": {"user@example.com"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	view := f.renderer.formView(t)
	if view.Email != "user@example.com" {
		t.Errorf("Email = %q", view.Email)
	}
}

func TestEventModeSwitch(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})
	id := f.open(t, "signup")

	f.post(t, "/auth/"+id+"/event", url.Values{
		"field": {"email"},
		"value": {"user@example.com"},
	})
	rec := f.post(t, "/auth/"+id+"/event", url.Values{"mode": {"magic_link"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	view := f.renderer.formView(t)
	if view.Mode != "magic_link" {
		t.Errorf("Mode = %q, want magic_link", view.Mode)
	}
	if view.Email != "user@example.com" {
		t.Error("expected email preserved across mode switch")
	}
	if view.SubmitLabel != "Send Magic Link" {
		t.Errorf("SubmitLabel = %q", view.SubmitLabel)
	}
}

func TestEventRejectsUnknownField(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})
	id := f.open(t, "login")

	rec := f.post(t, "/auth/"+id+"/event", url.Values{
		"field": {"nickname"},
		"value": {"x"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventMissingPayload(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})
	id := f.open(t, "login")

	rec := f.post(t, "/auth/"+id+"/event", url.Values{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventBadFormID(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})

	rec := f.post(t, "/auth/not-a-uuid/event", url.Values{"mode": {"login"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventUnknownFormID(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})

	rec := f.post(t, "/auth/1b671a64-40d5-491e-99b0-da01ff1f3341/event", url.Values{"mode": {"login"}})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// =============================================================================
// POST /auth/{id}/submit
// =============================================================================

func TestSubmitSuccessClosesForm(t *testing.T) {
	p := &mockProvider{
		SignInWithPasswordFunc: func(context.Context, string, string) (*provider.AuthResult, error) {
			return sessionResult("user-1"), nil
		},
	}
	f := newAuthFixture(t, p)
	id := f.open(t, "login")

	f.post(t, "/auth/"+id+"/event", url.Values{"field": {"email"}, "value": {"user@example.com"}})
	f.post(t, "/auth/"+id+"/event", url.Values{"field": {"password"}, "value": {"longenough"}})

	rec := f.post(t, "/auth/"+id+"/submit", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	view := f.renderer.formView(t)
	if !view.Closed {
		t.Error("expected Closed after successful login")
	}
	if view.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", view.UserID)
	}
	if f.registry.Len() != 0 {
		t.Error("expected form removed from registry after close")
	}
}

func TestSubmitValidationErrors(t *testing.T) {
	f := newAuthFixture(t, &mockProvider{})
	id := f.open(t, "signup")

	rec := f.post(t, "/auth/"+id+"/submit", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; validation failures still render the form", rec.Code)
	}

	view := f.renderer.formView(t)
	if view.Closed {
		t.Error("validation failure must not close the form")
	}
	if len(view.FieldErrors) != 3 {
		t.Errorf("FieldErrors = %v, want email, password, and terms", view.FieldErrors)
	}
	if f.registry.Len() != 1 {
		t.Error("expected form kept in registry")
	}
}

func TestSubmitProviderFailure(t *testing.T) {
	p := &mockProvider{
		SignInWithPasswordFunc: func(context.Context, string, string) (*provider.AuthResult, error) {
			return nil, &provider.Error{Status: 400, Message: "Invalid login credentials"}
		},
	}
	f := newAuthFixture(t, p)
	id := f.open(t, "login")

	f.post(t, "/auth/"+id+"/event", url.Values{"field": {"email"}, "value": {"user@example.com"}})
	f.post(t, "/auth/"+id+"/event", url.Values{"field": {"password"}, "value": {"longenough"}})
	rec := f.post(t, "/auth/"+id+"/submit", url.Values{})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	view := f.renderer.formView(t)
	if view.FormError != authform.MsgBadCredentials {
		t.Errorf("FormError = %q, want %q", view.FormError, authform.MsgBadCredentials)
	}
	if view.Closed {
		t.Error("failed submit must not close the form")
	}
}

func TestSubmitMagicLinkInfo(t *testing.T) {
	p := &mockProvider{
		SignInWithOTPFunc: func(context.Context, string, string) error { return nil },
	}
	f := newAuthFixture(t, p)
	id := f.open(t, "magic_link")

	f.post(t, "/auth/"+id+"/event", url.Values{"field": {"email"}, "value": {"user@example.com"}})
	f.post(t, "/auth/"+id+"/submit", url.Values{})

	view := f.renderer.formView(t)
	if view.Info != authform.MsgMagicLinkSent {
		t.Errorf("Info = %q, want %q", view.Info, authform.MsgMagicLinkSent)
	}
	if view.Closed {
		t.Error("magic link dispatch must keep the form open")
	}
}

// =============================================================================
// POST /auth/{id}/oauth
// =============================================================================

func TestOAuthRedirect(t *testing.T) {
	p := &mockProvider{
		SignInWithOAuthFunc: func(context.Context, string, string) (string, error) {
			return "https://id.example.com/authorize?provider=google", nil
		},
	}
	f := newAuthFixture(t, p)
	id := f.open(t, "login")

	rec := f.post(t, "/auth/"+id+"/oauth", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("HX-Redirect"); got != "https://id.example.com/authorize?provider=google" {
		t.Errorf("HX-Redirect = %q", got)
	}
}

func TestOAuthFailure(t *testing.T) {
	p := &mockProvider{
		SignInWithOAuthFunc: func(context.Context, string, string) (string, error) {
			return "", &provider.Error{Message: "network error: connection refused"}
		},
	}
	f := newAuthFixture(t, p)
	id := f.open(t, "login")

	rec := f.post(t, "/auth/"+id+"/oauth", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("HX-Redirect") != "" {
		t.Error("failed OAuth must not set a redirect")
	}
	view := f.renderer.formView(t)
	if view.FormError != authform.MsgNetworkFailure {
		t.Errorf("FormError = %q", view.FormError)
	}
}

// =============================================================================
// GET /auth/callback
// =============================================================================

func TestCallbackSuccess(t *testing.T) {
	p := &mockProvider{
		GetSessionFunc: func(_ context.Context, token string) (*provider.Session, error) {
			if token != "valid-token" {
				t.Errorf("token = %q", token)
			}
			return &provider.Session{AccessToken: token}, nil
		},
		GetUserFunc: func(context.Context, string) (*provider.User, error) {
			return &provider.User{ID: "user-1"}, nil
		},
	}
	f := newAuthFixture(t, p)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?access_token=valid-token&provider=google&mode=login", nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/" {
		t.Errorf("Location = %q, want /", got)
	}
}

func TestCallbackInvalidSession(t *testing.T) {
	p := &mockProvider{
		GetSessionFunc: func(context.Context, string) (*provider.Session, error) {
			return nil, &provider.Error{Message: "session expired"}
		},
	}
	f := newAuthFixture(t, p)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?access_token=stale", nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.renderer.lastName != "callback" {
		t.Errorf("rendered %q, want callback", f.renderer.lastName)
	}
	view, ok := f.renderer.lastData.(CallbackView)
	if !ok {
		t.Fatalf("rendered data is %T", f.renderer.lastData)
	}
	if !strings.Contains(view.Error, "invalid or has expired") {
		t.Errorf("Error = %q", view.Error)
	}
}

func TestCallbackUserFetchFailure(t *testing.T) {
	p := &mockProvider{
		GetSessionFunc: func(_ context.Context, token string) (*provider.Session, error) {
			return &provider.Session{AccessToken: token}, nil
		},
		GetUserFunc: func(context.Context, string) (*provider.User, error) {
			return nil, &provider.Error{Status: 429, Message: "too many requests"}
		},
	}
	f := newAuthFixture(t, p)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?access_token=valid", nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	view, ok := f.renderer.lastData.(CallbackView)
	if !ok {
		t.Fatalf("rendered data is %T", f.renderer.lastData)
	}
	if view.Error != authform.MsgRateLimited {
		t.Errorf("Error = %q, want %q", view.Error, authform.MsgRateLimited)
	}
}
