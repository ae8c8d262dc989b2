package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/clip-job-server/log"
	"github.com/xeipuuv/gojsonschema"
)

// Kind is the closed set of error kinds the core distinguishes, per §7.
type Kind string

const (
	BadRequest           Kind = "BadRequest"
	Unauthorized         Kind = "Unauthorized"
	NotFound             Kind = "NotFound"
	SourceUnusable       Kind = "SourceUnusable"
	TranscribeFailed     Kind = "TranscribeFailed"
	LLMFailed            Kind = "LLMFailed"
	EncoderFailed        Kind = "EncoderFailed"
	UploadFailed         Kind = "UploadFailed"
	NoSegmentsProducible Kind = "NoSegmentsProducible"
	JobTimeout           Kind = "JobTimeout"
	InternalError        Kind = "InternalError"
)

// terminal reports whether this kind, left unhandled by the Worker, must end
// a Job in status=failed rather than trigger a stage fallback, per §7.
func (k Kind) terminal() bool {
	switch k {
	case NoSegmentsProducible, JobTimeout, InternalError, BadRequest, Unauthorized, NotFound:
		return true
	default:
		return false
	}
}

// JobError is the structured error a Job's error records and snapshot carry:
// kind, message and an optional stage, per §7.
type JobError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
	cause   error
}

func NewJobError(kind Kind, message string, stage string, cause error) *JobError {
	return &JobError{Kind: kind, Message: message, Stage: stage, cause: cause}
}

func (e *JobError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.cause
}

// Terminal reports whether this error must set the Job's status to failed.
func (e *JobError) Terminal() bool {
	return e.Kind.terminal()
}

// AsJobError extracts a *JobError from err's chain, if present.
func AsJobError(err error) (*JobError, bool) {
	var je *JobError
	ok := errors.As(err, &je)
	return je, ok
}

type APIError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHttpError(w http.ResponseWriter, msg string, status int, err error) APIError {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": errorDetail}); err != nil {
		log.LogNoRequestID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}
	return APIError{msg, status, err}
}

// HTTP Errors
func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusUnauthorized, err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusBadRequest, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusNotFound, err)
}

func WriteHTTPTooManyRequests(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusTooManyRequests, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusInternalServerError, err)
}

func WriteHTTPBadBodySchema(where string, w http.ResponseWriter, errors []gojsonschema.ResultError) APIError {
	sb := strings.Builder{}
	sb.WriteString("Body validation error in ")
	sb.WriteString(where)
	sb.WriteString(" ")
	for i := 0; i < len(errors); i++ {
		sb.WriteString(errors[i].String())
		sb.WriteString(" ")
	}
	return writeHttpError(w, sb.String(), http.StatusBadRequest, nil)
}

// Unretriable marks err as a permanent failure for backoff.Retry, so the
// fetch and upload retry loops stop immediately instead of burning
// through the full retry schedule on errors that will never succeed (bad
// request, 404, schema validation).
func Unretriable(err error) error {
	return backoff.Permanent(err)
}

// IsUnretriable reports whether err was wrapped with Unretriable.
func IsUnretriable(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

type ObjectNotFoundError struct {
	msg   string
	cause error
}

func (e ObjectNotFoundError) Error() string {
	return e.msg
}

func (e ObjectNotFoundError) Unwrap() error {
	return e.cause
}

func NewObjectNotFoundError(msg string, cause error) error {
	if cause != nil {
		msg = fmt.Sprintf("ObjectNotFoundError: %s: %s", msg, cause)
	} else {
		msg = fmt.Sprintf("ObjectNotFoundError: %s", msg)
	}
	// every not found is unretriable
	return Unretriable(ObjectNotFoundError{msg: msg, cause: cause})
}

// IsObjectNotFound checks if the error is an ObjectNotFoundError.
func IsObjectNotFound(err error) bool {
	return errors.As(err, &ObjectNotFoundError{})
}
