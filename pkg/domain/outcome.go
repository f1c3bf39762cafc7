package domain

import "fmt"

// ErrorKind classifies a rejected mutation. Reason strings carry the
// user-facing message; the kind is the stable programmatic handle.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindNotFound         ErrorKind = "not_found"
	KindInvalidState     ErrorKind = "invalid_state"
	KindCapacityExceeded ErrorKind = "capacity_exceeded"
	KindProtocolInvalid  ErrorKind = "protocol_invalid"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindTrainingInvalid  ErrorKind = "training_invalid"
	KindMalformedInput   ErrorKind = "malformed_input"
	KindDuplicate        ErrorKind = "duplicate"
)

// Outcome is the result of a mutation attempt. A failed outcome carries a
// kind and a human-readable reason; state is guaranteed untouched on failure.
type Outcome struct {
	OK     bool      `json:"ok"`
	Kind   ErrorKind `json:"kind,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Success returns a successful outcome.
func Success() Outcome {
	return Outcome{OK: true}
}

// Fail returns a failed outcome with the given kind and reason.
func Fail(kind ErrorKind, reason string) Outcome {
	return Outcome{Kind: kind, Reason: reason}
}

// Failf returns a failed outcome with a formatted reason.
func Failf(kind ErrorKind, format string, args ...any) Outcome {
	return Outcome{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Failed reports whether the outcome represents a rejected mutation.
func (o Outcome) Failed() bool {
	return !o.OK
}

func (o Outcome) String() string {
	if o.OK {
		return "ok"
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
}
