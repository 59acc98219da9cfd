package unifiedmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	xerrors "UnifiedMCP-Client/internal/errors"
	"UnifiedMCP-Client/internal/realtime"
)

// socketTransport runs an operation as a realtime request and blocks until
// the correlated reply arrives or the timeout elapses.
type socketTransport struct {
	conn    *realtime.Conn
	timeout time.Duration
}

func (t *socketTransport) name() string { return "realtime" }

func (t *socketTransport) do(ctx context.Context, op operation, out any) error {
	reply, err := t.request(ctx, op.event, op.payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if flag, isBool := out.(*bool); isBool && op.field == "success" {
		// request has already rejected a falsy flag.
		*flag = true
		return nil
	}
	value, ok := reply[op.field]
	if !ok {
		return xerrors.New(xerrors.CodeMalformedReply,
			fmt.Sprintf("reply to %s has no %q field", op.event, op.field),
			xerrors.WithMetadata("event", op.event))
	}
	if err := json.Unmarshal(value, out); err != nil {
		return xerrors.Wrap(xerrors.CodeMalformedReply, err, "decode "+op.field+" from "+op.event)
	}
	return nil
}

// request emits event and returns the full reply object once the server
// reports success.
func (t *socketTransport) request(ctx context.Context, event string, payload any) (map[string]json.RawMessage, error) {
	if !t.conn.Connected() {
		return nil, ErrNotConnected
	}
	if payload == nil {
		payload = Object{}
	}
	raw, err := t.conn.Request(ctx, event, payload, t.timeout)
	if err != nil {
		return nil, err
	}

	var reply map[string]json.RawMessage
	if err := json.Unmarshal(raw, &reply); err != nil || reply == nil {
		return nil, xerrors.New(xerrors.CodeMalformedReply,
			fmt.Sprintf("reply to %s is not an object: %s", event, string(raw)),
			xerrors.WithMetadata("event", event))
	}

	var success any
	if v, ok := reply["success"]; ok {
		_ = json.Unmarshal(v, &success)
	}
	if !truthy(success) {
		return nil, xerrors.New(xerrors.CodeRemoteFailure, remoteMessage(reply["error"]),
			xerrors.WithMetadata("event", event))
	}
	return reply, nil
}

// remoteMessage extracts the server-provided error message.
func remoteMessage(raw json.RawMessage) string {
	const fallback = "Unknown error"
	if len(raw) == 0 {
		return fallback
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch msg := v.(type) {
	case nil:
		return fallback
	case string:
		if msg == "" {
			return fallback
		}
		return msg
	case map[string]any:
		if s, ok := msg["message"].(string); ok && s != "" {
			return s
		}
	}
	return string(raw)
}

// truthy mirrors JSON truthiness: false, 0, "", null, [] and {} are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
