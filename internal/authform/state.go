// Package authform implements the authentication form controller: a pure
// state machine over the form's fields plus the orchestration that drives
// identity provider calls and reports outcomes to telemetry.
//
// The state machine is a reducer: Reduce(state, event) returns the next
// state without touching the network. The Form type in form.go is the
// impure shell that sequences provider calls and dispatches events, so the
// transition logic stays testable without a provider.
package authform

// Mode selects which provider operation a submit runs and which fields are
// relevant.
type Mode string

const (
	ModeSignup    Mode = "signup"
	ModeLogin     Mode = "login"
	ModeMagicLink Mode = "magic_link"
)

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSignup, ModeLogin, ModeMagicLink:
		return true
	}
	return false
}

// Field names the editable form fields.
type Field string

const (
	FieldEmail       Field = "email"
	FieldPassword    Field = "password"
	FieldAcceptTerms Field = "acceptTerms"
)

// FieldErrors maps a field to its validation message. A field with no error
// has no entry.
type FieldErrors map[Field]string

// State is the complete form state. It is a value type: Reduce never
// mutates its input, so callers can hold onto old states safely.
type State struct {
	Mode         Mode
	Email        string
	Password     string
	AcceptTerms  bool
	IsSubmitting bool
	FieldErrors  FieldErrors
	FormError    string
}

// NewState returns the initial state for the given mode: empty fields, no
// errors, not submitting.
func NewState(mode Mode) State {
	return State{
		Mode:        mode,
		FieldErrors: FieldErrors{},
	}
}

// Event is a tagged variant consumed by Reduce.
type Event interface {
	isEvent()
}

// FieldUpdated sets a field value and clears that field's error along with
// the form-level error. Checkbox fields parse "true"/"on" as checked.
type FieldUpdated struct {
	Field Field
	Value string
}

// ModeChanged switches the active mode. Email survives the switch; every
// other field and error resets.
type ModeChanged struct {
	Mode Mode
}

// SubmitStarted marks the beginning of a submission attempt.
type SubmitStarted struct{}

// ValidationFailed ends a submission attempt with per-field errors.
type ValidationFailed struct {
	Errors FieldErrors
}

// SubmitSucceeded ends a submission attempt cleanly.
type SubmitSucceeded struct{}

// SubmitFailed ends a submission attempt with a form-level error message.
type SubmitFailed struct {
	Message string
}

func (FieldUpdated) isEvent()     {}
func (ModeChanged) isEvent()      {}
func (SubmitStarted) isEvent()    {}
func (ValidationFailed) isEvent() {}
func (SubmitSucceeded) isEvent()  {}
func (SubmitFailed) isEvent()     {}

// Reduce applies one event to the state and returns the next state.
// Unknown events return the state unchanged.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case FieldUpdated:
		next := s
		switch ev.Field {
		case FieldEmail:
			next.Email = ev.Value
		case FieldPassword:
			next.Password = ev.Value
		case FieldAcceptTerms:
			next.AcceptTerms = ev.Value == "true" || ev.Value == "on"
		default:
			return s
		}
		next.FieldErrors = s.FieldErrors.without(ev.Field)
		next.FormError = ""
		return next

	case ModeChanged:
		next := NewState(ev.Mode)
		next.Email = s.Email
		return next

	case SubmitStarted:
		next := s
		next.IsSubmitting = true
		next.FormError = ""
		return next

	case ValidationFailed:
		next := s
		next.IsSubmitting = false
		next.FieldErrors = ev.Errors.clone()
		return next

	case SubmitSucceeded:
		next := s
		next.IsSubmitting = false
		next.FieldErrors = FieldErrors{}
		next.FormError = ""
		return next

	case SubmitFailed:
		next := s
		next.IsSubmitting = false
		next.FormError = ev.Message
		return next
	}

	return s
}

// without returns a copy of fe with the given field's entry removed.
func (fe FieldErrors) without(f Field) FieldErrors {
	out := make(FieldErrors, len(fe))
	for k, v := range fe {
		if k != f {
			out[k] = v
		}
	}
	return out
}

// clone returns an independent copy so later events cannot alias the
// caller's map.
func (fe FieldErrors) clone() FieldErrors {
	out := make(FieldErrors, len(fe))
	for k, v := range fe {
		out[k] = v
	}
	return out
}
