package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stesla/tether/internal/event"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MessageType distinguishes requests from responses on the wire.
type MessageType string

const (
	TypeRequest  MessageType = "request"
	TypeResponse MessageType = "response"
)

var ErrNotObject = errors.New("payload must encode to a JSON object")

// header is the part of an envelope the transport routes on. The payload's
// own fields sit next to it in the same JSON object.
type header struct {
	ID      int64
	Type    MessageType
	Command string
	Result  string
}

// Request is an inbound request. Body is the whole envelope, so Decode sees
// the payload fields alongside the header.
type Request struct {
	ID      int64
	Command string
	Body    []byte
}

func (r *Request) Kind() event.Kind { return event.Kind(r.Command) }

func (r *Request) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// KindResponse is the Kind of every Response, so a Pump can route replies
// to one-shot callbacks that match on ID.
const KindResponse event.Kind = "response"

type Response struct {
	ID     int64
	Result string
	Body   []byte
}

func (r *Response) Kind() event.Kind { return KindResponse }

func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// encodeEnvelope marshals payload and writes the header fields into it.
// Payload fields named id, type, command or result are overwritten.
func encodeEnvelope(h header, payload any) ([]byte, error) {
	body := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if !gjson.ParseBytes(b).IsObject() {
			return nil, ErrNotObject
		}
		body = b
	}
	fields := []struct {
		path  string
		value any
		set   bool
	}{
		{"id", h.ID, true},
		{"type", string(h.Type), true},
		{"command", h.Command, h.Command != ""},
		{"result", h.Result, h.Result != ""},
	}
	for _, f := range fields {
		if !f.set {
			continue
		}
		var err error
		if body, err = sjson.SetBytes(body, f.path, f.value); err != nil {
			return nil, fmt.Errorf("set %s: %w", f.path, err)
		}
	}
	return body, nil
}

func parseHeader(frame []byte) (h header, err error) {
	if !gjson.ValidBytes(frame) {
		return h, errors.New("invalid JSON")
	}
	fields := gjson.GetManyBytes(frame, "id", "type", "command", "result")
	if fields[0].Type != gjson.Number {
		return h, errors.New("missing numeric id")
	}
	h.ID = fields[0].Int()
	h.Type = MessageType(fields[1].String())
	h.Command = fields[2].String()
	h.Result = fields[3].String()
	return h, nil
}
