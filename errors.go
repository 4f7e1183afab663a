package identity

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrEmailTaken is returned by Register when the normalized email is
	// already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidEmail is returned by Register when the address is not
	// even shaped like an email.
	ErrInvalidEmail = errors.New("malformed email address")
	// ErrWeakPassword is returned when a supplied password fails the
	// minimum-length policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrInvalidCredentials is returned on login when the email is
	// unknown or the password does not match; callers cannot tell which.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified gates login and two-factor enrollment until
	// the address has been verified.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrAlreadyVerified is returned when requesting a verification code
	// for an address that is already verified.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrCodeInvalid is the uniform failure for a one-time code that is
	// missing, expired, or wrong.
	ErrCodeInvalid = errors.New("invalid or expired code")
	// ErrUnauthorized is the uniform failure for invalid access tokens,
	// invalid refresh material, and failed two-factor completion.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied is returned when a valid principal lacks a
	// required permission claim.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrIdentityNotFound is returned by administrative operations that
	// target an unknown identity id.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrTwoFactorMethod is returned when enabling two-factor with an
	// unsupported delivery method.
	ErrTwoFactorMethod = errors.New("unsupported two-factor method")
)
