package identify

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

var (
	ErrImageEncodingFailed  = errors.New("image could not be prepared for upload")
	ErrDecoding             = errors.New("identification response failed schema validation")
	ErrRateLimitExceeded    = errors.New("vision provider rate limit exceeded")
	ErrAuthenticationFailed = errors.New("vision provider authentication failed")
	ErrProvider             = errors.New("vision provider error")
)

// FieldError names one offending field of a response, using its JSON path.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// DecodingError is returned when a response does not satisfy the schema.
type DecodingError struct {
	Fields []FieldError
	Err    error
}

func (e *DecodingError) Error() string {
	if len(e.Fields) == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", ErrDecoding, e.Err)
		}
		return ErrDecoding.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrDecoding, strings.Join(parts, "; "))
}

func (e *DecodingError) Unwrap() error { return e.Err }

func (e *DecodingError) Is(target error) bool { return target == ErrDecoding }

// ProviderError wraps a transport or service failure. Status is zero when
// no HTTP response was received.
type ProviderError struct {
	Status int
	Kind   error
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (http %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == e.Kind }

// classifyProviderError maps a client error onto the taxonomy by HTTP status.
// Context errors are passed through so callers can tell a timeout apart.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDecoding) || errors.Is(err, ErrImageEncodingFailed) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	kind := ErrProvider
	switch status {
	case http.StatusTooManyRequests:
		kind = ErrRateLimitExceeded
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrAuthenticationFailed
	}
	return &ProviderError{Status: status, Kind: kind, Err: err}
}
