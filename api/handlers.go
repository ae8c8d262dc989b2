package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/registry"
)

// Handlers holds everything the five HTTP endpoints from §6 need to talk to
// the core: the Registry (job create/get/retry) plus the queue-depth cap a
// caller gets a 429 against.
type Handlers struct {
	Registry      *registry.Registry
	MaxQueueDepth int
}

func New(reg *registry.Registry, maxQueueDepth int) *Handlers {
	return &Handlers{Registry: reg, MaxQueueDepth: maxQueueDepth}
}

type createJobResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}

// validateAgainstSchema reads req.Body (capped, single read) and validates it
// against the named compiled schema, mirroring the teacher's
// compile-once/validate-per-request json_schema.go idiom.
func validateAgainstSchema(schemaName string, w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		errors.WriteHTTPBadRequest(w, "failed to read request body", err)
		return nil, false
	}
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	schema := inputSchemasCompiled[schemaName]
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		errors.WriteHTTPBadRequest(w, "body is not valid JSON", err)
		return nil, false
	}
	if !result.Valid() {
		errors.WriteHTTPBadBodySchema(schemaName, w, result.Errors())
		return nil, false
	}
	return payload, true
}

// CreateJob handles POST /jobs, per §6.
func (h *Handlers) CreateJob() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if h.Registry.QueueDepth() >= h.MaxQueueDepth {
			errors.WriteHTTPTooManyRequests(w, "job queue is full", nil)
			return
		}

		payload, ok := validateAgainstSchema("JobRequest", w, r)
		if !ok {
			return
		}

		var req job.Request
		if err := json.Unmarshal(payload, &req); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request payload", err)
			return
		}

		j, err := h.Registry.Create(req)
		if err != nil {
			writeJobError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, createJobResponse{JobID: j.JobID, Status: j.Status})
	}
}

// GetJob handles GET /jobs/{job_id}, per §6.
func (h *Handlers) GetJob() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		j, err := h.Registry.Get(ps.ByName("job_id"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

type retryRequestBody struct {
	Options *job.Options `json:"options,omitempty"`
}

type retryJobResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}

// RetryJob handles POST /jobs/{job_id}/retry, per §6. The only failure mode
// of Registry.Retry besides "no such job" is "not yet terminal", so any
// non-NotFound error maps to 409 here rather than the error's own Kind.
func (h *Handlers) RetryJob() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		payload, ok := validateAgainstSchema("RetryRequest", w, r)
		if !ok {
			return
		}

		var body retryRequestBody
		if err := json.Unmarshal(payload, &body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request payload", err)
			return
		}

		j, err := h.Registry.Retry(ps.ByName("job_id"), body.Options)
		if err != nil {
			if je, ok := errors.AsJobError(err); ok && je.Kind == errors.NotFound {
				errors.WriteHTTPNotFound(w, je.Message, nil)
				return
			}
			writeHTTPConflict(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, retryJobResponse{JobID: j.JobID, Status: j.Status})
	}
}

type healthzResponse struct {
	OK bool `json:"ok"`
}

// Healthz handles GET /healthz; no auth, per §6.
func Healthz() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, healthzResponse{OK: true})
	}
}

type versionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionHandler handles GET /version; no auth, per §6.
func VersionHandler() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, versionResponse{Version: config.Version, Commit: config.Commit})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJobError maps a *errors.JobError's Kind to the HTTP status §7 implies;
// anything not explicitly a client error surfaces as 500.
func writeJobError(w http.ResponseWriter, err error) {
	je, ok := errors.AsJobError(err)
	if !ok {
		errors.WriteHTTPInternalServerError(w, err.Error(), err)
		return
	}
	switch je.Kind {
	case errors.BadRequest:
		errors.WriteHTTPBadRequest(w, je.Message, nil)
	case errors.Unauthorized:
		errors.WriteHTTPUnauthorized(w, je.Message, nil)
	case errors.NotFound:
		errors.WriteHTTPNotFound(w, je.Message, nil)
	default:
		errors.WriteHTTPInternalServerError(w, je.Message, nil)
	}
}

func writeHTTPConflict(w http.ResponseWriter, err error) errors.APIError {
	msg := err.Error()
	if je, ok := errors.AsJobError(err); ok {
		msg = je.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
	return errors.APIError{Msg: msg, Status: http.StatusConflict, Err: err}
}
