package communication

import "context"

type SandCode string

const (
	CodeOK          SandCode = "OK"
	CodeBadRequest  SandCode = "BAD_REQUEST"
	CodeNotFound    SandCode = "NOT_FOUND"
	CodeInternal    SandCode = "INTERNAL"
	CodeUnavailable SandCode = "UNAVAILABLE"
)

// Message is a typed request. Payload holds a value of the type registered
// for Type on the receiving side.
type Message struct {
	From    string
	Type    string
	Payload any
}

type Response struct {
	Code    SandCode
	Body    []byte
	Headers map[string]string
}

type MessageHandler func(ctx context.Context, msg Message) (*Response, error)

type Communicator interface {
	Start(handler MessageHandler) error
	Stop() error
	Send(ctx context.Context, to string, msg Message) (*Response, error)
	Address() string
}

// PayloadRegistry is implemented by communicators that decode payloads into
// registered Go types.
type PayloadRegistry interface {
	RegisterPayloadType(msgType string, payload any)
}
