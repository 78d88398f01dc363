package provider

import "fmt"

// TransportError is a network or HTTP-layer failure talking to a vendor.
// Fatal to the current run.
type TransportError struct {
	Provider string
	Status   int // 0 when the request never completed
	Body     string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponse means the vendor returned 2xx but the body could not
// be parsed into an assistant message. Fatal to the current run.
type MalformedResponse struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedResponse) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Reason)
}

func (e *MalformedResponse) Unwrap() error { return e.Err }

// UnknownProviderError is returned by the factory for a provider id no
// adapter serves.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %q (supported: %v)", e.Provider, Providers())
}
