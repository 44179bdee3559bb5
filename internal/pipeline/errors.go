package pipeline

import (
	"encoding/json"
	"fmt"
)

// APIError carries a non-2xx response body from the classification endpoint.
// Message and Details are surfaced to the user verbatim.
type APIError struct {
	Status  int
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("classification endpoint returned %d: %s", e.Status, e.Message)
}

// NetworkError is a transport-level failure: the request never produced an
// HTTP response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure reaching classification endpoint: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
