package services

import (
	"errors"
	"fmt"
)

// Identity error codes
const (
	CodeInvalidCredential  = "invalid-credential"
	CodeUserNotFound       = "user-not-found"
	CodeWrongPassword      = "wrong-password"
	CodeTooManyRequests    = "too-many-requests"
	CodeEmailAlreadyInUse  = "email-already-in-use"
	CodeWeakPassword       = "weak-password"
	CodeInvalidEmail       = "invalid-email"
	CodeInvalidActionToken = "invalid-action-code"
	CodeExpiredActionToken = "expired-action-code"
	CodeInvalidIDToken     = "invalid-id-token"
	CodeInvalidRefresh     = "invalid-refresh-token"
)

// IdentityOperation names the account operation an error came from.
// The same code can map to different messages per operation.
type IdentityOperation string

const (
	OpLogin         IdentityOperation = "login"
	OpRegister      IdentityOperation = "register"
	OpResetPassword IdentityOperation = "reset-password"
	OpGoogle        IdentityOperation = "google"
	OpVerifyEmail   IdentityOperation = "verify-email"
	OpRefresh       IdentityOperation = "refresh"
)

// IdentityError is an account failure with a stable code
type IdentityError struct {
	Code string
	Err  error
}

func (e *IdentityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity: %s: %v", e.Code, e.Err)
	}
	return "identity: " + e.Code
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

func identityError(code string, err error) *IdentityError {
	return &IdentityError{Code: code, Err: err}
}

// IdentityCode extracts the code of an identity error, or ""
func IdentityCode(err error) string {
	var idErr *IdentityError
	if errors.As(err, &idErr) {
		return idErr.Code
	}
	return ""
}

var fallbackMessages = map[IdentityOperation]string{
	OpLogin:         "Failed to log in.",
	OpRegister:      "Failed to create an account.",
	OpResetPassword: "Failed to reset password.",
	OpGoogle:        "Failed to sign in with Google. Please try again.",
	OpVerifyEmail:   "Failed to verify email.",
	OpRefresh:       "Your session has expired. Please log in again.",
}

// IdentityMessage maps an error to the fixed message shown to the user.
// Codes without a mapping for the operation fall back to its generic message.
func IdentityMessage(op IdentityOperation, err error) string {
	code := IdentityCode(err)

	switch op {
	case OpLogin:
		switch code {
		case CodeUserNotFound, CodeWrongPassword, CodeInvalidCredential:
			return "Invalid email or password."
		case CodeTooManyRequests:
			return "Too many login attempts. Please try again later."
		}
	case OpRegister:
		switch code {
		case CodeEmailAlreadyInUse:
			return "An account with this email already exists."
		case CodeWeakPassword:
			return "Password is too weak. It should be at least 6 characters."
		case CodeInvalidEmail:
			return "The email address is not valid."
		}
	case OpResetPassword:
		switch code {
		case CodeUserNotFound, CodeInvalidEmail:
			return "No account found with that email address."
		case CodeWeakPassword:
			return "Password is too weak. It should be at least 6 characters."
		case CodeInvalidActionToken, CodeExpiredActionToken:
			return "This password reset link is invalid or has expired."
		}
	case OpVerifyEmail:
		switch code {
		case CodeInvalidActionToken, CodeExpiredActionToken:
			return "This verification link is invalid or has expired."
		}
	}

	if msg, ok := fallbackMessages[op]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}
