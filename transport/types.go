package transport

import "encoding/json"

const (
	ProtocolVersion = 1

	frameHello = "hello"
	frameReady = "ready"
	frameEvent = "event"
	frameAck   = "ack"
	frameError = "error"

	// DefaultEvent is the event name used by Send.
	DefaultEvent = "message"
)

// Frame is the envelope exchanged in both directions.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    uint64          `json:"id,omitempty"`
	Error *ProtocolError  `json:"error,omitempty"`
}

// HelloPayload initiates the session.
type HelloPayload struct {
	Protocol int       `json:"protocol"`
	Client   string    `json:"client,omitempty"`
	Auth     HelloAuth `json:"auth"`
}

// HelloAuth carries the pre-shared secret. It is only sent once per connection.
type HelloAuth struct {
	Secret string `json:"secret"`
}

// ProtocolError describes an error reported by the remote party.
type ProtocolError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// EventFrame builds an event frame, marshalling v as its data.
func EventFrame(event string, v any) (Frame, error) {
	data, err := marshalData(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameEvent, Event: event, Data: data}, nil
}

// AckFrame builds a reply frame for request id.
func AckFrame(id uint64, data json.RawMessage) Frame {
	return Frame{Type: frameAck, ID: id, Data: data}
}

// ReadyFrame builds the frame a remote party sends to accept a hello.
func ReadyFrame() Frame { return Frame{Type: frameReady} }

// ErrorFrame builds a protocol error frame.
func ErrorFrame(code, msg string) Frame {
	return Frame{Type: frameError, Error: &ProtocolError{Code: code, Msg: msg}}
}

// IsHello reports whether f opens a session.
func (f Frame) IsHello() bool { return f.Type == frameHello }

// IsEvent reports whether f carries a named event.
func (f Frame) IsEvent() bool { return f.Type == frameEvent }

// IsAck reports whether f is a reply to an earlier request.
func (f Frame) IsAck() bool { return f.Type == frameAck }

func marshalData(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, WrapError(ErrorSerialization, "failed to marshal payload", err)
	}
	return data, nil
}
