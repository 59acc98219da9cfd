package unifiedmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// operation describes one domain call in terms both transports understand.
type operation struct {
	name string

	// realtime
	event   string
	payload any
	field   string

	// HTTP; path is already escaped.
	method string
	path   string
	body   any
	query  url.Values
	// noContent makes the HTTP transport ignore the response body and report
	// success through a *bool result.
	noContent bool
}

// transport executes an operation and decodes its result into out.
type transport interface {
	name() string
	do(ctx context.Context, op operation, out any) error
}

type httpTransport struct {
	baseURL *url.URL
	client  *http.Client
	apiKey  string
}

func (t *httpTransport) name() string { return "http" }

func (t *httpTransport) do(ctx context.Context, op operation, out any) error {
	req, err := t.newRequest(ctx, op)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "perform request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if op.noContent {
		if ok, isBool := out.(*bool); isBool {
			*ok = true
		}
		return nil
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return xerrors.Wrap(xerrors.CodeMalformedReply, err, "decode response")
	}
	return nil
}

func (t *httpTransport) newRequest(ctx context.Context, op operation) (*http.Request, error) {
	u := t.baseURL.JoinPath(op.path)
	if len(op.query) > 0 {
		u.RawQuery = op.query.Encode()
	}

	var body io.Reader
	if op.body != nil {
		encoded, err := json.Marshal(op.body)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeEncodeFailure, err, "encode request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, op.method, u.String(), body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	return req, nil
}

// pathSegment escapes s as a single path segment. Dot segments are
// percent-encoded so URL joining cannot resolve them away.
func pathSegment(s string) string {
	if s == "." || s == ".." {
		return strings.Repeat("%2E", len(s))
	}
	return url.PathEscape(s)
}

func newAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err == nil {
			apiErr.Body = compact.String()
		} else {
			apiErr.Body = string(trimmed)
		}
		_ = json.Unmarshal(trimmed, &apiErr.Detail)
		return apiErr
	}
	apiErr.Body = strings.TrimSpace(string(data))
	return apiErr
}
