package stripe

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthentication is returned when the provider rejects the API key.
var ErrAuthentication = errors.New("stripe: invalid api key")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stripe: api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("stripe: api error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// Unwrap lets errors.Is(err, ErrAuthentication) match 401 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrAuthentication
	}
	return nil
}
