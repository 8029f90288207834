// Package action decodes peripheral action codes and drives the local audio
// capability, publishing the resulting command for UI consumers.
package action

// Code is the closed set of action codes carried in the leading byte of a
// notification payload.
type Code byte

const (
	CodePlay Code = 1
	CodeLoop Code = 2
	CodeStop Code = 3
)

func (c Code) String() string {
	switch c {
	case CodePlay:
		return "play"
	case CodeLoop:
		return "loop"
	case CodeStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Recognized reports whether the code is in the closed set.
func (c Code) Recognized() bool {
	return c == CodePlay || c == CodeLoop || c == CodeStop
}

// Decode reads the leading byte of a payload. ok is false for an empty
// payload, which carries no action at all. Payloads longer than one byte are
// valid; only byte 0 is interpreted.
func Decode(payload []byte) (code Code, ok bool) {
	if len(payload) == 0 {
		return 0, false
	}
	return Code(payload[0]), true
}
