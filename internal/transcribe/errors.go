package transcribe

import "fmt"

// ErrorKind classifies transcription failures. The client absorbs transport
// and decoding errors and translates them into this closed set; callers
// never see raw platform errors.
type ErrorKind int

const (
	// ErrInvalidEndpoint means no well-formed absolute server address is
	// configured.
	ErrInvalidEndpoint ErrorKind = iota
	// ErrInvalidResponse means the exchange produced no usable HTTP
	// response (connection refused, request could not be built or sent).
	ErrInvalidResponse
	// ErrHTTP is a non-2xx status without a decodable error body.
	ErrHTTP
	// ErrServer is a non-2xx status with a server-provided detail message.
	ErrServer
	// ErrTranscriptionFailed is an HTTP success whose payload reports
	// success=false. Application-level, not retryable.
	ErrTranscriptionFailed
	// ErrMalformedResponse means the 2xx payload could not be decoded.
	ErrMalformedResponse
	// ErrCancelled means the caller aborted the in-flight transfer.
	ErrCancelled
	// ErrTimeout means the transport deadline elapsed.
	ErrTimeout
)

// Error is a typed transcription failure. Status is set for ErrHTTP and
// Detail for ErrServer.
type Error struct {
	Kind   ErrorKind
	Status int
	Detail string
	Err    error
}

// Error renders the fixed user-facing message for the kind, interpolating
// the server detail or status code where the kind carries one.
func (e *Error) Error() string {
	switch e.Kind {
	case ErrInvalidEndpoint:
		return "transcription server address is missing or invalid"
	case ErrInvalidResponse:
		if e.Err != nil {
			return fmt.Sprintf("could not reach the transcription server: %v", e.Err)
		}
		return "could not reach the transcription server"
	case ErrHTTP:
		return fmt.Sprintf("transcription server returned HTTP %d", e.Status)
	case ErrServer:
		return fmt.Sprintf("transcription server error: %s", e.Detail)
	case ErrTranscriptionFailed:
		return "the server could not transcribe the recording"
	case ErrMalformedResponse:
		return "the transcription server response could not be decoded"
	case ErrCancelled:
		return "transcription was cancelled"
	case ErrTimeout:
		return "the transcription request timed out"
	default:
		return "transcription failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }
