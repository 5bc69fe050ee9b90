package sandbox

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// MessageType tags a sandbox message
type MessageType string

const (
	// frame -> host
	TypeFrameReady     MessageType = "frameReady"
	TypeExecutionReady MessageType = "executionReady"
	TypeExecutionError MessageType = "executionError"

	// host -> frame
	TypeInject MessageType = "inject"
)

// ErrUnknownMessage is returned for inbound messages outside the contract
var ErrUnknownMessage = errors.New("unknown sandbox message")

// strict rejects fields the contract does not name
var strict = sonic.Config{
	DisallowUnknownFields: true,
	ValidateString:        true,
}.Froze()

// Message is a frame-to-host message. Message and Stack are set only for
// executionError.
type Message struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message,omitempty"`
	Stack   string      `json:"stack,omitempty"`
}

// Inject is the single host-to-frame instruction
type Inject struct {
	Type MessageType `json:"type"`
	Code string      `json:"code"`
}

type inbound struct {
	Type    MessageType `json:"type"`
	Message *string     `json:"message"`
	Stack   *string     `json:"stack"`
}

// Decode parses a frame-to-host message. Unknown types, unknown fields and
// payload on payload-free types are rejected with ErrUnknownMessage.
func Decode(data []byte) (Message, error) {
	var in inbound
	if err := strict.Unmarshal(data, &in); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}

	switch in.Type {
	case TypeFrameReady, TypeExecutionReady:
		if in.Message != nil || in.Stack != nil {
			return Message{}, fmt.Errorf("%w: %s carries payload", ErrUnknownMessage, in.Type)
		}
		return Message{Type: in.Type}, nil

	case TypeExecutionError:
		if in.Message == nil {
			return Message{}, fmt.Errorf("%w: executionError without message", ErrUnknownMessage)
		}
		msg := Message{Type: in.Type, Message: *in.Message}
		if in.Stack != nil {
			msg.Stack = *in.Stack
		}
		return msg, nil

	default:
		return Message{}, fmt.Errorf("%w: type %q", ErrUnknownMessage, in.Type)
	}
}

// Encode serializes a frame-to-host message
func Encode(msg Message) ([]byte, error) {
	return sonic.Marshal(msg)
}

// EncodeInject serializes the inject instruction for code
func EncodeInject(code string) ([]byte, error) {
	return sonic.Marshal(Inject{Type: TypeInject, Code: code})
}

// DecodeInject parses a host-to-frame instruction. Anything but inject is
// rejected.
func DecodeInject(data []byte) (string, error) {
	var in Inject
	if err := strict.Unmarshal(data, &in); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	if in.Type != TypeInject {
		return "", fmt.Errorf("%w: type %q", ErrUnknownMessage, in.Type)
	}
	return in.Code, nil
}
