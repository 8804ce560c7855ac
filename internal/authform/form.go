package authform

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/lanternlabs/lantern/internal/domain"
	"github.com/lanternlabs/lantern/internal/metrics"
	"github.com/lanternlabs/lantern/internal/provider"
	"github.com/lanternlabs/lantern/internal/telemetry"
)

// Informational messages surfaced after submissions that succeed without
// establishing a session.
const (
	MsgCheckEmail    = "Check your email for a confirmation link to continue."
	MsgMagicLinkSent = "Magic link sent. Check your email to continue."
)

// Callbacks is the caller contract: OnAuthSuccess then OnClose are invoked
// exactly once per signup/login that establishes a session, and never for
// magic-link dispatch or OAuth redirects.
type Callbacks struct {
	OnAuthSuccess func(userID string)
	OnClose       func()
}

// Sinks are the fire-and-forget telemetry collaborators. Either may be
// nil; reporting is best-effort and never fails the auth flow.
type Sinks struct {
	Analytics *telemetry.Analytics
	Failures  *telemetry.Failures
}

// Config assembles a Form's collaborators.
type Config struct {
	InitialMode Mode
	Provider    provider.Client

	// RedirectTo is the post-auth redirect target: the site origin plus
	// the fixed callback path.
	RedirectTo string

	Callbacks Callbacks
	Sinks     Sinks
	Logger    *slog.Logger
}

// Form is one live auth form instance. It owns its State exclusively and
// drives it through reducer events; Submit and SubmitOAuth are the only
// places provider calls happen.
//
// A Form is created when the form is opened and discarded when it closes;
// it carries no persistence.
type Form struct {
	mu    sync.Mutex
	state State
	info  string
	cfg   Config
}

// NewForm creates a form seeded with the configured initial mode.
func NewForm(cfg Config) *Form {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if !cfg.InitialMode.Valid() {
		cfg.InitialMode = ModeSignup
	}
	return &Form{
		state: NewState(cfg.InitialMode),
		cfg:   cfg,
	}
}

// State returns a copy of the current form state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	s.FieldErrors = f.state.FieldErrors.clone()
	return s
}

// Info returns the current informational message, if any.
func (f *Form) Info() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

// Apply dispatches a user-originated event (field edit or mode switch).
// Submission lifecycle events are owned by the orchestrator and ignored
// here, as is any user event that arrives while a submission is in
// flight: a mode switch would otherwise rebuild the state and clear the
// busy flag, defeating the submit guard.
func (f *Form) Apply(e Event) {
	switch ev := e.(type) {
	case FieldUpdated:
		f.mu.Lock()
		if !f.state.IsSubmitting {
			f.state = Reduce(f.state, ev)
		}
		f.mu.Unlock()
	case ModeChanged:
		if !ev.Mode.Valid() {
			return
		}
		f.mu.Lock()
		if !f.state.IsSubmitting {
			f.state = Reduce(f.state, ev)
			f.info = ""
		}
		f.mu.Unlock()
	}
}

// Submit runs one submission attempt for the current mode: validation,
// the provider call, and the resulting state transition. A Submit while a
// submission is already in flight is a no-op; the submit control is
// disabled during the busy span, so a second call is a caller error.
//
// No error is returned: every outcome, including provider failure, lands
// in the form state as either field errors or a mapped form error.
func (f *Form) Submit(ctx context.Context) {
	f.mu.Lock()
	if f.state.IsSubmitting {
		f.mu.Unlock()
		return
	}
	f.info = ""
	f.state = Reduce(f.state, SubmitStarted{})

	if errs := Validate(f.state); len(errs) > 0 {
		f.state = Reduce(f.state, ValidationFailed{Errors: errs})
		providerTag := telemetry.ProviderPassword
		if f.state.Mode == ModeMagicLink {
			providerTag = telemetry.ProviderMagicLink
		}
		modeTag := telemetry.AuthModeLogin
		if f.state.Mode == ModeSignup {
			modeTag = telemetry.AuthModeSignup
		}
		f.mu.Unlock()
		metrics.AuthSubmissions.WithLabelValues(providerTag, modeTag, "invalid").Inc()
		return
	}

	mode := f.state.Mode
	email := strings.TrimSpace(f.state.Email)
	password := f.state.Password
	f.mu.Unlock()

	switch mode {
	case ModeSignup:
		f.submitSignup(ctx, email, password)
	case ModeMagicLink:
		f.submitMagicLink(ctx, email)
	default:
		f.submitLogin(ctx, email, password)
	}
}

func (f *Form) submitSignup(ctx context.Context, email, password string) {
	redirect := f.redirectTarget(telemetry.ProviderPassword, telemetry.AuthModeSignup)
	result, err := f.cfg.Provider.SignUp(ctx, email, password, redirect)
	if err != nil {
		f.fail(err, telemetry.ProviderPassword)
		return
	}

	f.succeed()
	metrics.AuthSubmissions.WithLabelValues(telemetry.ProviderPassword, telemetry.AuthModeSignup, "success").Inc()

	if result.User != nil && result.Session != nil {
		f.recordCompletion(telemetry.ProviderPassword, telemetry.AuthModeSignup)
		f.notifySuccess(result.User.ID)
		return
	}

	// Provider wants email confirmation first; the form stays open with
	// an informational message.
	f.setInfo(MsgCheckEmail)
}

func (f *Form) submitMagicLink(ctx context.Context, email string) {
	redirect := f.redirectTarget(telemetry.ProviderMagicLink, telemetry.AuthModeLogin)
	if err := f.cfg.Provider.SignInWithOTP(ctx, email, redirect); err != nil {
		f.fail(err, telemetry.ProviderMagicLink)
		return
	}

	f.succeed()
	metrics.AuthSubmissions.WithLabelValues(telemetry.ProviderMagicLink, telemetry.AuthModeLogin, "success").Inc()
	f.setInfo(MsgMagicLinkSent)
}

func (f *Form) submitLogin(ctx context.Context, email, password string) {
	result, err := f.cfg.Provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		f.fail(err, telemetry.ProviderPassword)
		return
	}

	if result.User == nil || result.Session == nil {
		// The provider reported success without handing back a session.
		// Never treat a non-authenticated state as authenticated: surface
		// the generic failure and report it for diagnosis.
		f.inconsistentSuccess()
		return
	}

	f.succeed()
	metrics.AuthSubmissions.WithLabelValues(telemetry.ProviderPassword, telemetry.AuthModeLogin, "success").Inc()
	f.recordCompletion(telemetry.ProviderPassword, telemetry.AuthModeLogin)
	f.notifySuccess(result.User.ID)
}

// SubmitOAuth starts the OAuth redirect flow ("continue with Google").
// On success it returns the provider's authorize URL for the browser to
// navigate to; no local success continuation runs because the page is
// about to unload. Returns "" while busy or on failure.
func (f *Form) SubmitOAuth(ctx context.Context) string {
	f.mu.Lock()
	if f.state.IsSubmitting {
		f.mu.Unlock()
		return ""
	}
	f.info = ""
	f.state = Reduce(f.state, SubmitStarted{})
	f.mu.Unlock()

	redirect := f.redirectTarget(telemetry.ProviderGoogle, f.modeTag())
	authorizeURL, err := f.cfg.Provider.SignInWithOAuth(ctx, "google", redirect)
	if err != nil {
		f.fail(err, telemetry.ProviderGoogle)
		return ""
	}

	f.succeed()
	metrics.AuthSubmissions.WithLabelValues(telemetry.ProviderGoogle, f.modeTag(), "success").Inc()
	return authorizeURL
}

func (f *Form) succeed() {
	f.mu.Lock()
	f.state = Reduce(f.state, SubmitSucceeded{})
	f.mu.Unlock()
}

func (f *Form) setInfo(message string) {
	f.mu.Lock()
	f.info = message
	f.mu.Unlock()
}

// fail maps the provider error for display, transitions the state, and
// reports the raw error to failure tracking.
func (f *Form) fail(err error, providerTag string) {
	raw := err.Error()
	var perr *provider.Error
	if errors.As(err, &perr) {
		raw = perr.RawMessage()
	}

	mode := f.modeTag()
	f.mu.Lock()
	f.state = Reduce(f.state, SubmitFailed{Message: MapProviderError(raw)})
	f.mu.Unlock()

	metrics.AuthSubmissions.WithLabelValues(providerTag, mode, "failure").Inc()
	f.cfg.Sinks.Failures.RecordAuthFailure(err, providerTag, mode)
	f.cfg.Logger.Warn("auth submission failed", "provider", providerTag, "mode", mode)
}

// inconsistentSuccess handles a password login the provider reported as
// successful without returning a session.
func (f *Form) inconsistentSuccess() {
	f.mu.Lock()
	f.state = Reduce(f.state, SubmitFailed{Message: MsgAuthFailed})
	f.mu.Unlock()

	err := domain.Errorf(domain.EINTERNAL, "authform.login", "provider reported success without a session")
	metrics.AuthSubmissions.WithLabelValues(telemetry.ProviderPassword, telemetry.AuthModeLogin, "failure").Inc()
	f.cfg.Sinks.Failures.RecordAuthFailure(err, telemetry.ProviderPassword, telemetry.AuthModeLogin)
	f.cfg.Logger.Error("login succeeded without a session")
}

func (f *Form) notifySuccess(userID string) {
	if f.cfg.Callbacks.OnAuthSuccess != nil {
		f.cfg.Callbacks.OnAuthSuccess(userID)
	}
	if f.cfg.Callbacks.OnClose != nil {
		f.cfg.Callbacks.OnClose()
	}
}

func (f *Form) recordCompletion(providerTag, modeTag string) {
	f.cfg.Sinks.Analytics.RecordAuthCompletion(providerTag, modeTag)
}

// modeTag collapses the three form modes into the two telemetry modes:
// signup stays signup, everything else reports as login.
func (f *Form) modeTag() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Mode == ModeSignup {
		return telemetry.AuthModeSignup
	}
	return telemetry.AuthModeLogin
}

// redirectTarget tags the callback URL with provider and mode so the
// callback page can attribute the completion.
func (f *Form) redirectTarget(providerTag, modeTag string) string {
	u, err := url.Parse(f.cfg.RedirectTo)
	if err != nil {
		return f.cfg.RedirectTo
	}
	q := u.Query()
	q.Set("provider", providerTag)
	q.Set("mode", modeTag)
	u.RawQuery = q.Encode()
	return u.String()
}
