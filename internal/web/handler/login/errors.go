// Package login implements the login page and the credential submission
// flow: CSRF and captcha gates, the attempt limiter, dispatch to the local
// or directory verifier and the hand-off to the second factor.
package login

// User facing flash messages. Credential failures of any kind render the
// same generic text so the response never reveals whether the username
// exists, is inactive or had a wrong password.
const (
	MsgInvalidCSRF        = "Invalid CSRF token"
	MsgCaptchaFailed      = "Captcha verification failed"
	MsgEmptyPassword      = "Please enter a password"
	MsgTooManyAttempts    = "Too many failed login attempts. Please try again later."
	MsgInvalidCredentials = "Invalid username or password"
	MsgInternalError      = "Internal server error"
)
