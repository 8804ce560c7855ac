package telemetry

// Credential providers and modes used to tag auth telemetry. The mode tag
// collapses to signup/login: magic-link dispatches report under the login
// mode with their own provider tag.
const (
	ProviderPassword  = "password"
	ProviderMagicLink = "magic-link"
	ProviderGoogle    = "google"

	AuthModeSignup = "signup"
	AuthModeLogin  = "login"
)

// Analytics records product analytics events.
type Analytics struct {
	dispatcher *Dispatcher
}

func NewAnalytics(dispatcher *Dispatcher) *Analytics {
	return &Analytics{dispatcher: dispatcher}
}

// RecordAuthCompletion reports a finished authentication, tagged with the
// credential provider and signup/login mode.
func (a *Analytics) RecordAuthCompletion(provider, mode string) {
	if a == nil {
		return
	}
	a.dispatcher.Emit(NewEvent("auth_completed", map[string]string{
		"provider": provider,
		"mode":     mode,
	}))
}

// RecordCTAClick reports a landing-page call-to-action click.
func (a *Analytics) RecordCTAClick(location, target string) {
	if a == nil {
		return
	}
	a.dispatcher.Emit(NewEvent("cta_clicked", map[string]string{
		"location": location,
		"target":   target,
	}))
}

// Failures records diagnostic failure events. Raw provider error text goes
// here and only here; users see the mapped messages.
type Failures struct {
	dispatcher *Dispatcher
}

func NewFailures(dispatcher *Dispatcher) *Failures {
	return &Failures{dispatcher: dispatcher}
}

// RecordAuthFailure reports a failed authentication attempt with its raw
// error and provider/mode tags.
func (f *Failures) RecordAuthFailure(err error, provider, mode string) {
	if f == nil {
		return
	}
	message := ""
	if err != nil {
		message = err.Error()
	}
	f.dispatcher.Emit(NewEvent("auth_failure", map[string]string{
		"area":     "auth",
		"provider": provider,
		"mode":     mode,
		"error":    message,
	}))
}
