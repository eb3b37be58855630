package message

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderwise/orderwise/runtime/scheme"
)

// Object is a serializable message payload. All payloads travelling through the
// bus embed ObjectMeta and are registered in the scheme so the other side can
// decode them back into a concrete type.
type Object interface {
	scheme.Object
	UID() string
	SetUID(uid string)
}

type ObjectMeta struct {
	scheme.TypeMeta `json:",inline" mapstructure:",squash"`
	PayloadUID      string `json:"uid"`
}

func (o ObjectMeta) UID() string {
	return o.PayloadUID
}

func (o *ObjectMeta) SetUID(uid string) {
	o.PayloadUID = uid
}

type Headers map[string]interface{}

const (
	headerUID      = "uid"
	headerTraceID  = "traceId"
	headerOrderUID = "orderUID"
)

func (h Headers) TraceID() string {
	return h.str(headerTraceID)
}

// OrderUID is the correlation id: every message belonging to an order's saga
// carries it so the consumer can route the message to the right instance.
func (h Headers) OrderUID() string {
	return h.str(headerOrderUID)
}

func (h Headers) SetOrderUID(orderUID string) {
	h[headerOrderUID] = orderUID
}

func (h Headers) str(key string) string {
	v, exists := h[key]
	if !exists {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// ReceivedMessage is a message consumed from the transport and decoded into a
// concrete payload type.
type ReceivedMessage struct {
	uid        string
	payload    Object
	headers    Headers
	receivedAt time.Time
	origin     string
}

func NewReceivedMessage(uid string, payload Object, headers Headers, receivedAt time.Time, origin string) *ReceivedMessage {
	return &ReceivedMessage{uid: uid, payload: payload, headers: headers, receivedAt: receivedAt, origin: origin}
}

func (m ReceivedMessage) UID() string {
	return m.uid
}

func (m ReceivedMessage) Payload() Object {
	return m.payload
}

func (m ReceivedMessage) Headers() Headers {
	return m.headers
}

func (m ReceivedMessage) ReceivedAt() time.Time {
	return m.receivedAt
}

func (m ReceivedMessage) Origin() string {
	return m.origin
}

// OutcomingMessage wraps a payload to be sent out.
type OutcomingMessage struct {
	uid     string
	payload Object
	headers Headers
}

type MsgOption func(m *OutcomingMessage)

func WithHeaders(headers Headers) MsgOption {
	return func(m *OutcomingMessage) {
		for k, v := range headers {
			m.headers[k] = v
		}
	}
}

func WithTraceID(traceID string) MsgOption {
	return func(m *OutcomingMessage) {
		m.headers[headerTraceID] = traceID
	}
}

func NewOutcomingMessage(payload Object, passedOptions ...MsgOption) *OutcomingMessage {
	msg := &OutcomingMessage{uid: uuid.New().String(), payload: payload, headers: Headers{}}

	for _, o := range passedOptions {
		o(msg)
	}

	msg.headers[headerUID] = msg.uid

	if payload.UID() == "" {
		payload.SetUID(msg.uid)
	}

	return msg
}

// FromReceivedMsg turns a received message back into an outcoming one, keeping
// uid and headers. Used when returning a message to the queue.
func FromReceivedMsg(received *ReceivedMessage) *OutcomingMessage {
	return &OutcomingMessage{uid: received.UID(), payload: received.Payload(), headers: received.Headers()}
}

func (m OutcomingMessage) UID() string {
	return m.uid
}

func (m OutcomingMessage) Payload() Object {
	return m.payload
}

func (m OutcomingMessage) Headers() Headers {
	return m.headers
}
