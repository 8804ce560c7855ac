package authform

import "strings"

// The five user-facing failure messages. Raw provider text is never shown
// to users; it only reaches the failure-tracking sink.
const (
	MsgBadCredentials  = "Email or password is incorrect."
	MsgEmailUnverified = "Confirm your email before logging in."
	MsgRateLimited     = "Too many attempts. Try again in a few minutes."
	MsgNetworkFailure  = "Network error. Check your connection and retry."
	MsgAuthFailed      = "Authentication failed. Please try again."
)

// errorBuckets is checked in order; the first bucket with a matching
// substring wins.
var errorBuckets = []struct {
	needles []string
	message string
}{
	{[]string{"invalid login credentials", "invalid credentials"}, MsgBadCredentials},
	{[]string{"email not confirmed"}, MsgEmailUnverified},
	{[]string{"rate limit", "too many requests", "too many attempts"}, MsgRateLimited},
	{[]string{"network error", "failed to fetch", "network request failed"}, MsgNetworkFailure},
}

// MapProviderError normalizes raw provider error text into one of the five
// fixed user-facing messages. Matching is case-insensitive substring search
// against known provider phrasings; anything unrecognized falls through to
// the generic message.
func MapProviderError(raw string) string {
	value := strings.ToLower(raw)
	for _, bucket := range errorBuckets {
		for _, needle := range bucket.needles {
			if strings.Contains(value, needle) {
				return bucket.message
			}
		}
	}
	return MsgAuthFailed
}
