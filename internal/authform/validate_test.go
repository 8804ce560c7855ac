package authform

import "testing"

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"plain address", "user@example.com", true},
		{"subdomain", "user@mail.example.co.uk", true},
		{"plus tag", "user+tag@example.com", true},
		{"surrounding whitespace", "  user@example.com  ", true},
		{"empty", "", false},
		{"no at sign", "userexample.com", false},
		{"no domain dot", "user@example", false},
		{"space inside", "us er@example.com", false},
		{"double at", "user@@example.com", false},
		{"trailing dot only", "user@example.", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState(ModeLogin)
			s.Email = tc.email
			s.Password = "longenough"

			errs := Validate(s)
			_, hasErr := errs[FieldEmail]
			if hasErr == tc.valid {
				t.Errorf("Validate(email=%q): error=%v, want valid=%v", tc.email, hasErr, tc.valid)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		password string
		wantErr  bool
	}{
		{"login too short", ModeLogin, "1234567", true},
		{"login exactly minimum", ModeLogin, "12345678", false},
		{"login empty", ModeLogin, "", true},
		{"multibyte runes counted as characters", ModeLogin, "áéíóúñü", true},
		{"eight multibyte runes pass", ModeLogin, "áéíóúñüç", false},
		{"signup too short", ModeSignup, "short", true},
		{"signup long enough", ModeSignup, "longenough", false},
		{"magic link ignores password", ModeMagicLink, "", false},
		{"magic link ignores short password", ModeMagicLink, "x", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState(tc.mode)
			s.Email = "user@example.com"
			s.Password = tc.password
			s.AcceptTerms = true

			errs := Validate(s)
			_, hasErr := errs[FieldPassword]
			if hasErr != tc.wantErr {
				t.Errorf("Validate(mode=%s, password=%q): error=%v, want %v", tc.mode, tc.password, hasErr, tc.wantErr)
			}
			if hasErr && errs[FieldPassword] != MsgShortPassword {
				t.Errorf("password message = %q, want %q", errs[FieldPassword], MsgShortPassword)
			}
		})
	}
}

func TestValidateAcceptTerms(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		accept  bool
		wantErr bool
	}{
		{"signup unchecked", ModeSignup, false, true},
		{"signup checked", ModeSignup, true, false},
		{"login never requires terms", ModeLogin, false, false},
		{"magic link never requires terms", ModeMagicLink, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState(tc.mode)
			s.Email = "user@example.com"
			s.Password = "longenough"
			s.AcceptTerms = tc.accept

			errs := Validate(s)
			_, hasErr := errs[FieldAcceptTerms]
			if hasErr != tc.wantErr {
				t.Errorf("Validate(mode=%s, accept=%v): error=%v, want %v", tc.mode, tc.accept, hasErr, tc.wantErr)
			}
		})
	}
}

func TestValidateReportsAllFailures(t *testing.T) {
	s := NewState(ModeSignup)
	s.Email = "not-an-email"
	s.Password = "short"

	errs := Validate(s)

	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if errs[FieldEmail] != MsgInvalidEmail {
		t.Errorf("email message = %q", errs[FieldEmail])
	}
	if errs[FieldPassword] != MsgShortPassword {
		t.Errorf("password message = %q", errs[FieldPassword])
	}
	if errs[FieldAcceptTerms] != MsgTermsRequired {
		t.Errorf("terms message = %q", errs[FieldAcceptTerms])
	}
}

func TestValidateCleanStatePasses(t *testing.T) {
	s := NewState(ModeSignup)
	s.Email = "user@example.com"
	s.Password = "longenough"
	s.AcceptTerms = true

	if errs := Validate(s); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}
