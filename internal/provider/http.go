package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/exedev/beeline/internal/conv"
)

// DefaultTimeout bounds one vendor round trip.
const DefaultTimeout = 120 * time.Second

// NewHTTPClient returns the http.Client adapters are driven with. A zero
// timeout selects DefaultTimeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Send builds the vendor request for the conversation, posts it, and
// parses the response into an assistant message. Non-2xx statuses and
// network failures come back as *TransportError; undecodable bodies as
// *MalformedResponse.
func Send(ctx context.Context, client *http.Client, a Adapter, c *conv.Conversation, tools []Tool) (*conv.Message, Usage, error) {
	req, err := a.BuildRequest(c, tools)
	if err != nil {
		return nil, Usage{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, Usage{}, fmt.Errorf("%s: create request: %w", a.Provider(), err)
	}
	httpReq.Header = req.Header

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, Usage{}, &TransportError{Provider: a.Provider(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Usage{}, &TransportError{Provider: a.Provider(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, Usage{}, &TransportError{
			Provider: a.Provider(),
			Status:   resp.StatusCode,
			Body:     string(body),
		}
	}

	return a.ParseResponse(body)
}
