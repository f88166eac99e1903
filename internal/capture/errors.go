package capture

import "fmt"

// ErrorKind classifies capture failures. Every error the engine surfaces is
// one of these; platform errors are wrapped, never passed through raw.
type ErrorKind int

const (
	// ErrSessionConfig means the audio input could not be activated
	// (device busy, permission revoked, no input device).
	ErrSessionConfig ErrorKind = iota
	// ErrFileCreate means the output path could not be created.
	ErrFileCreate
	// ErrEncode means the encoder failed mid-recording (disk write error).
	ErrEncode
)

var kindMessages = map[ErrorKind]string{
	ErrSessionConfig: "audio input could not be activated",
	ErrFileCreate:    "recording file could not be created",
	ErrEncode:        "audio encoding failed",
}

// Error is a typed capture failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	msg := kindMessages[e.Kind]
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
