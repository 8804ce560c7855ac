// Package handler contains the HTTP handlers for the Lantern landing site.
//
// This file implements the auth form endpoints. Each open form is a
// server-owned instance addressed by an opaque ID; the browser posts
// events (field edits, mode switches, submits) and receives the rendered
// form fragment back.
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lanternlabs/lantern/internal/authform"
	"github.com/lanternlabs/lantern/internal/domain"
	"github.com/lanternlabs/lantern/internal/metrics"
	"github.com/lanternlabs/lantern/internal/middleware"
	"github.com/lanternlabs/lantern/internal/provider"
	"github.com/lanternlabs/lantern/internal/telemetry"
)

// CallbackPath is the fixed path the provider redirects back to after
// email confirmation, magic-link sign-in, and OAuth.
const CallbackPath = "/auth/callback"

// TemplateRenderer is the interface for rendering HTML templates.
// This interface allows for mocking in tests.
type TemplateRenderer interface {
	RenderHTTP(w http.ResponseWriter, name string, data interface{})
	RenderPartial(w http.ResponseWriter, name string, data interface{})
}

// AuthHandler handles the auth form endpoints.
//
// Routes handled:
//   - POST /auth/open        -> Open (create a form instance)
//   - POST /auth/{id}/event  -> Event (field edit / mode switch)
//   - POST /auth/{id}/submit -> Submit
//   - POST /auth/{id}/oauth  -> OAuth ("continue with Google")
//   - GET  /auth/callback    -> Callback (post-redirect session resolution)
type AuthHandler struct {
	provider  provider.Client
	registry  *FormRegistry
	renderer  TemplateRenderer
	analytics *telemetry.Analytics
	failures  *telemetry.Failures
	logger    *slog.Logger

	// redirectTo is the site origin plus CallbackPath, handed to every
	// provider call that supports post-auth redirection.
	redirectTo string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	providerClient provider.Client,
	registry *FormRegistry,
	renderer TemplateRenderer,
	analytics *telemetry.Analytics,
	failures *telemetry.Failures,
	logger *slog.Logger,
	baseURL string,
) *AuthHandler {
	return &AuthHandler{
		provider:   providerClient,
		registry:   registry,
		renderer:   renderer,
		analytics:  analytics,
		failures:   failures,
		logger:     logger,
		redirectTo: strings.TrimRight(baseURL, "/") + CallbackPath,
	}
}

// RegisterRoutes registers the auth routes. limit, when non-nil, wraps the
// endpoints that reach the identity provider.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, limit middleware.Middleware) {
	guarded := func(fn http.HandlerFunc) http.Handler {
		if limit == nil {
			return fn
		}
		return limit(fn)
	}

	mux.HandleFunc("POST /auth/open", h.Open)
	mux.HandleFunc("POST /auth/{id}/event", h.Event)
	mux.Handle("POST /auth/{id}/submit", guarded(h.Submit))
	mux.Handle("POST /auth/{id}/oauth", guarded(h.OAuth))
	mux.HandleFunc("GET "+CallbackPath, h.Callback)
}

// =============================================================================
// Form Fragment View
// =============================================================================

// AuthFormView is the template data for the auth form fragment.
type AuthFormView struct {
	FormID       string
	Mode         string
	Title        string
	SubmitLabel  string
	Email        string
	AcceptTerms  bool
	IsSubmitting bool
	FieldErrors  map[string]string
	FormError    string
	Info         string

	// Closed signals the browser to dismiss the modal; UserID is set on
	// the submission that completed authentication.
	Closed bool
	UserID string
}

func formTitle(mode authform.Mode) string {
	switch mode {
	case authform.ModeSignup:
		return "Create your account"
	case authform.ModeMagicLink:
		return "Continue with magic link"
	default:
		return "Log in"
	}
}

func submitLabel(mode authform.Mode) string {
	switch mode {
	case authform.ModeSignup:
		return "Create Account"
	case authform.ModeMagicLink:
		return "Send Magic Link"
	default:
		return "Log In"
	}
}

func (h *AuthHandler) formView(id uuid.UUID, form *authform.Form, outcome *authOutcome) AuthFormView {
	state := form.State()

	fieldErrors := make(map[string]string, len(state.FieldErrors))
	for field, message := range state.FieldErrors {
		fieldErrors[string(field)] = message
	}

	userID, closed := outcome.snapshot()

	return AuthFormView{
		FormID:       id.String(),
		Mode:         string(state.Mode),
		Title:        formTitle(state.Mode),
		SubmitLabel:  submitLabel(state.Mode),
		Email:        state.Email,
		AcceptTerms:  state.AcceptTerms,
		IsSubmitting: state.IsSubmitting,
		FieldErrors:  fieldErrors,
		FormError:    state.FormError,
		Info:         form.Info(),
		Closed:       closed,
		UserID:       userID,
	}
}

// =============================================================================
// POST /auth/open
// =============================================================================

// Open creates a new form instance seeded with the requested mode and
// returns the rendered form fragment.
func (h *AuthHandler) Open(w http.ResponseWriter, r *http.Request) {
	mode := authform.Mode(r.FormValue("mode"))
	if mode == "" {
		mode = authform.ModeSignup
	}
	if !mode.Valid() {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINVALID, "auth.open", "Unknown auth mode."))
		return
	}

	// Landing-page buttons tag their open requests so the click is tracked
	// without any inline script.
	if location := r.FormValue("cta_location"); location != "" {
		target := r.FormValue("cta_target")
		if target != "primary" && target != "secondary" {
			target = "primary"
		}
		h.analytics.RecordCTAClick(location, target)
	}

	outcome := &authOutcome{}
	form := authform.NewForm(authform.Config{
		InitialMode: mode,
		Provider:    h.provider,
		RedirectTo:  h.redirectTo,
		Callbacks: authform.Callbacks{
			OnAuthSuccess: outcome.recordSuccess,
			OnClose:       outcome.recordClose,
		},
		Sinks: authform.Sinks{
			Analytics: h.analytics,
			Failures:  h.failures,
		},
		Logger: h.logger,
	})

	id := h.registry.Add(form, outcome)
	metrics.AuthFormOpens.WithLabelValues(string(mode)).Inc()

	h.renderer.RenderPartial(w, "auth_form", h.formView(id, form, outcome))
}

// =============================================================================
// POST /auth/{id}/event
// =============================================================================

// Event applies a field edit or mode switch to a form instance and
// returns the re-rendered fragment.
//
// Form fields:
//   - field + value: update one field (email, password, acceptTerms)
//   - mode: switch mode (signup, login, magic_link)
func (h *AuthHandler) Event(w http.ResponseWriter, r *http.Request) {
	id, form, outcome, ok := h.lookupForm(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINVALID, "auth.event", "Invalid form submission."))
		return
	}

	switch {
	case r.PostForm.Has("mode"):
		mode := authform.Mode(r.PostFormValue("mode"))
		if !mode.Valid() {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINVALID, "auth.event", "Unknown auth mode."))
			return
		}
		form.Apply(authform.ModeChanged{Mode: mode})

	case r.PostForm.Has("field"):
		field := authform.Field(r.PostFormValue("field"))
		switch field {
		case authform.FieldEmail, authform.FieldPassword, authform.FieldAcceptTerms:
			form.Apply(authform.FieldUpdated{Field: field, Value: r.PostFormValue("value")})
		default:
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINVALID, "auth.event", "Unknown form field."))
			return
		}

	default:
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINVALID, "auth.event", "Missing event payload."))
		return
	}

	h.renderer.RenderPartial(w, "auth_form", h.formView(id, form, outcome))
}

// =============================================================================
// POST /auth/{id}/submit
// =============================================================================

// Submit drives one submission attempt. Every outcome, including provider
// failure, comes back as form state; the HTTP status is 200 either way.
func (h *AuthHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, form, outcome, ok := h.lookupForm(w, r)
	if !ok {
		return
	}

	form.Submit(r.Context())

	view := h.formView(id, form, outcome)
	if view.Closed {
		// The caller contract fired; the form instance is done.
		h.registry.Remove(id)
	}

	h.renderer.RenderPartial(w, "auth_form", view)
}

// =============================================================================
// POST /auth/{id}/oauth
// =============================================================================

// OAuth starts the "continue with Google" flow. On success the response
// carries the provider's authorize URL for the browser to navigate to.
func (h *AuthHandler) OAuth(w http.ResponseWriter, r *http.Request) {
	id, form, outcome, ok := h.lookupForm(w, r)
	if !ok {
		return
	}

	authorizeURL := form.SubmitOAuth(r.Context())
	if authorizeURL != "" {
		w.Header().Set("HX-Redirect", authorizeURL)
	}

	h.renderer.RenderPartial(w, "auth_form", h.formView(id, form, outcome))
}

// =============================================================================
// GET /auth/callback
// =============================================================================

// CallbackView is the template data for the callback page.
type CallbackView struct {
	Error string
}

// Callback completes redirect flows (email confirmation, magic link,
// OAuth): it resolves the provider session, fetches the user behind it,
// and sends the visitor home. Failures render the callback page with a
// user-facing message; raw provider errors go to failure tracking only.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("access_token")
	providerTag := r.URL.Query().Get("provider")
	modeTag := r.URL.Query().Get("mode")
	if providerTag == "" {
		providerTag = telemetry.ProviderPassword
	}
	if modeTag != telemetry.AuthModeSignup {
		modeTag = telemetry.AuthModeLogin
	}

	session, err := h.provider.GetSession(r.Context(), token)
	if err != nil || session == nil {
		metrics.AuthCallbacks.WithLabelValues("invalid").Inc()
		h.failures.RecordAuthFailure(err, providerTag, modeTag)
		h.renderer.RenderHTTP(w, "callback", CallbackView{
			Error: "Your session is invalid or has expired. Please sign in again.",
		})
		return
	}

	user, err := h.provider.GetUser(r.Context(), session.AccessToken)
	if err != nil || user == nil {
		metrics.AuthCallbacks.WithLabelValues("error").Inc()
		h.failures.RecordAuthFailure(err, providerTag, modeTag)

		message := authform.MsgAuthFailed
		if err != nil {
			message = authform.MapProviderError(err.Error())
		}
		h.renderer.RenderHTTP(w, "callback", CallbackView{Error: message})
		return
	}

	metrics.AuthCallbacks.WithLabelValues("success").Inc()
	h.logger.Info("auth callback resolved", "user_id", user.ID, "provider", providerTag, "mode", modeTag)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *AuthHandler) lookupForm(w http.ResponseWriter, r *http.Request) (uuid.UUID, *authform.Form, *authOutcome, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINVALID, "auth.lookup", "Invalid form ID."))
		return uuid.Nil, nil, nil, false
	}

	form, outcome, ok := h.registry.Get(id)
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTFOUND, "auth.lookup", "This form has expired. Reopen it to continue."))
		return uuid.Nil, nil, nil, false
	}

	return id, form, outcome, true
}
