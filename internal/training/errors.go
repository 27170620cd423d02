package training

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownJob is returned for job ids the tracker has no record of.
var ErrUnknownJob = errors.New("unknown training job")

// ErrUnexpectedStatus is returned when the service reports a state outside the known set.
var ErrUnexpectedStatus = errors.New("unexpected job status")

// APIError represents a structured error response from the training service.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		if e.Code != "" {
			if e.RequestID != "" {
				return fmt.Sprintf("api error: status=%d code=%s request_id=%s message=%s", e.StatusCode, e.Code, e.RequestID, e.Message)
			}
			return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
		}
		if e.RequestID != "" {
			return fmt.Sprintf("api error: status=%d request_id=%s message=%s", e.StatusCode, e.RequestID, e.Message)
		}
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("api error: status=%d request_id=%s", e.StatusCode, e.RequestID)
	}
	return fmt.Sprintf("api error: status=%d", e.StatusCode)
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// NotFoundError indicates the job, model or dataset does not exist on the service.
type NotFoundError struct{ *APIError }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.APIError.Error()) }

// BadRequestError indicates the service rejected the request (400/422).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// ServerError indicates 5xx errors from the service.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("service error: %s", e.APIError.Error()) }

// UnreachableError indicates the service could not be reached at all.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("training service unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("training service unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// SubmissionError means the job was never accepted; no local record exists for it.
type SubmissionError struct{ Err error }

func (e *SubmissionError) Error() string { return fmt.Sprintf("submit training job: %v", e.Err) }

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollTransportError means a status fetch failed. The local record is left as it
// was, so the job keeps its last known state.
type PollTransportError struct {
	JobID string
	Err   error
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("poll job %s: %v", e.JobID, e.Err)
}

func (e *PollTransportError) Unwrap() error { return e.Err }

// Temporary reports whether polling again may succeed. A job the service no
// longer knows about will not come back.
func (e *PollTransportError) Temporary() bool {
	var nf *NotFoundError
	return !errors.As(e.Err, &nf)
}
