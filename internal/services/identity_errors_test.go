package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityCode(t *testing.T) {
	err := fmt.Errorf("login: %w", identityError(CodeWrongPassword, errors.New("mismatch")))
	assert.Equal(t, CodeWrongPassword, IdentityCode(err))
	assert.Equal(t, "", IdentityCode(errors.New("plain")))
	assert.Equal(t, "", IdentityCode(nil))
}

func TestIdentityMessage(t *testing.T) {
	tests := []struct {
		op   IdentityOperation
		code string
		want string
	}{
		{OpLogin, CodeUserNotFound, "Invalid email or password."},
		{OpLogin, CodeWrongPassword, "Invalid email or password."},
		{OpLogin, CodeInvalidCredential, "Invalid email or password."},
		{OpLogin, CodeTooManyRequests, "Too many login attempts. Please try again later."},
		{OpLogin, "", "Failed to log in."},
		{OpRegister, CodeEmailAlreadyInUse, "An account with this email already exists."},
		{OpRegister, CodeWeakPassword, "Password is too weak. It should be at least 6 characters."},
		{OpRegister, CodeInvalidEmail, "The email address is not valid."},
		{OpRegister, CodeTooManyRequests, "Failed to create an account."},
		{OpResetPassword, CodeUserNotFound, "No account found with that email address."},
		{OpResetPassword, CodeInvalidEmail, "No account found with that email address."},
		{OpResetPassword, CodeExpiredActionToken, "This password reset link is invalid or has expired."},
		{OpResetPassword, "", "Failed to reset password."},
		{OpGoogle, CodeInvalidIDToken, "Failed to sign in with Google. Please try again."},
		{OpVerifyEmail, CodeInvalidActionToken, "This verification link is invalid or has expired."},
		{OpVerifyEmail, "", "Failed to verify email."},
		{OpRefresh, CodeInvalidRefresh, "Your session has expired. Please log in again."},
		{IdentityOperation("other"), "", "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		t.Run(string(tt.op)+"/"+tt.code, func(t *testing.T) {
			var err error = errors.New("boom")
			if tt.code != "" {
				err = identityError(tt.code, nil)
			}
			assert.Equal(t, tt.want, IdentityMessage(tt.op, err))
		})
	}
}
