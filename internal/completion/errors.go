package completion

import (
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrConfigurationMissing means no completion credential is configured.
	ErrConfigurationMissing = errors.New("completion credential not configured")

	// ErrUpstream marks a failed or malformed completion response.
	ErrUpstream = errors.New("completion upstream error")

	// ErrNoChoices is returned when the endpoint answers with no choices.
	ErrNoChoices = errors.New("no response from LLM")
)

// UpstreamError wraps a failure from the completion endpoint.
type UpstreamError struct {
	Model  string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion %s: status %d: %v", e.Model, e.Status, e.Err)
	}
	return fmt.Sprintf("completion %s: %v", e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// upstream classifies a go-openai error.
func upstream(model string, err error) *UpstreamError {
	ue := &UpstreamError{Model: model, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		ue.Status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		ue.Status = reqErr.HTTPStatusCode
	}
	return ue
}
