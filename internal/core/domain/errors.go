package domain

import (
	"errors"
	"net/http"
)

// Kind classifies a job failure into the small client-facing taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindUpstreamDenied
	KindUpstreamUnavailable
	KindUpstreamTransient
	KindDependencyMissing
	KindArtifactValidation
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindUpstreamDenied:
		return "upstream_denied"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindUpstreamTransient:
		return "upstream_transient"
	case KindDependencyMissing:
		return "dependency_missing"
	case KindArtifactValidation:
		return "artifact_validation_failed"
	default:
		return "internal"
	}
}

// HTTPStatus is the response status a failure of this kind maps to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest, KindUpstreamUnavailable:
		return http.StatusBadRequest
	case KindUpstreamDenied:
		return http.StatusForbidden
	case KindUpstreamTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Stable client messages. Raw causes never reach the client.
const (
	MsgDenied            = "YouTube requires verification. Please ensure valid cookies are provided."
	MsgUnavailable       = "Video is unavailable, private, or restricted in this region"
	MsgLiveUnsupported   = "Live streams are not supported"
	MsgTransient         = "Upstream is temporarily unreachable, please retry"
	MsgDependencyMissing = "Server is missing a required media tool"
	MsgValidation        = "Downloaded file failed validation"
	MsgInternal          = "Internal server error"
)

// JobError is a classified failure. Message is safe to show to clients; Err is
// the underlying cause and only goes to the operator log.
type JobError struct {
	Kind    Kind
	Stage   JobState
	Message string
	Err     error
}

func (e *JobError) Error() string {
	msg := e.Kind.String()
	if e.Stage != "" {
		msg = string(e.Stage) + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": " + e.Message
}

func (e *JobError) Unwrap() error { return e.Err }

// NewError builds a JobError with the default message for its kind.
func NewError(kind Kind, err error) *JobError {
	return &JobError{Kind: kind, Message: defaultMessage(kind), Err: err}
}

// InvalidRequest is a client input error with a specific message.
func InvalidRequest(msg string) *JobError {
	return &JobError{Kind: KindInvalidRequest, Message: msg}
}

func defaultMessage(k Kind) string {
	switch k {
	case KindInvalidRequest:
		return "Invalid request"
	case KindUpstreamDenied:
		return MsgDenied
	case KindUpstreamUnavailable:
		return MsgUnavailable
	case KindUpstreamTransient:
		return MsgTransient
	case KindDependencyMissing:
		return MsgDependencyMissing
	case KindArtifactValidation:
		return MsgValidation
	default:
		return MsgInternal
	}
}

// Classify returns the JobError for err, wrapping unclassified errors as internal.
func Classify(err error) *JobError {
	if err == nil {
		return nil
	}
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	return NewError(KindInternal, err)
}

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	return Classify(err).Kind
}

// IsTransient reports whether err may succeed if retried.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindUpstreamTransient
}
