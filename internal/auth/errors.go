package auth

import "fmt"

// AuthError is the structured failure raised by the request authenticator.
// Lower layers return sentinels; only this boundary carries HTTP status.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s (status %d)", e.Message, e.Status)
}

func NewAuthError(status int, message string) *AuthError {
	return &AuthError{Status: status, Message: message}
}
