package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPayload = errors.New("invalid payload")

// Envelope is one inbound frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

// Outbound is one frame written to a client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	Ack   *int64 `json:"ack,omitempty"`
}

// Decode parses a raw frame.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrInvalidPayload)
	}
	return env, nil
}

// Bind unmarshals the envelope data into v and runs its validation, if any.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%w: %s requires data", ErrInvalidPayload, e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if val, ok := v.(interface{ Validate() error }); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return nil
}

// BindID reads a payload that is either a bare string or an object holding the
// id under key, e.g. "u1" or {"userId":"u1"}.
func (e Envelope) BindID(key string) (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &obj); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	raw, ok := obj[key]
	if !ok {
		return "", nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidPayload, key)
	}
	return strings.TrimSpace(s), nil
}

// Timestamp accepts RFC 3339 strings or epoch milliseconds.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", str, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("timestamp %s: %w", s, err)
		}
		ms = int64(f)
	}
	t.Time = time.UnixMilli(ms)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// OrNow returns the timestamp normalized to UTC, or now when unset.
func (t Timestamp) OrNow(now time.Time) time.Time {
	if t.IsZero() {
		return now.UTC()
	}
	return t.UTC()
}
