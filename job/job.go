// Package job defines the Job aggregate: its mutable state machine, the
// request/options shape a caller submits, and the data types that flow
// through the Fetcher/Transcriber/Selector/Renderer/Uploader pipeline.
package job

import (
	"sync"
	"time"

	"github.com/livepeer/clip-job-server/errors"
)

// Status is one of the four states a Job passes through, per §3.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Stage is the current coarse phase of a running Job, per the glossary.
type Stage string

const (
	StageFetching     Stage = "fetching"
	StageTranscribing Stage = "transcribing"
	StageSelecting    Stage = "selecting"
	StageRendering    Stage = "rendering"
	StageUploading    Stage = "uploading"
	StageDone         Stage = "done"
)

var validTransitions = map[Status][]Status{
	StatusQueued:  {StatusRunning},
	StatusRunning: {StatusDone, StatusFailed},
	StatusDone:    {},
	StatusFailed:  {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Method tags which strategy produced a Selection range or ClipOutput.
type Method string

const (
	MethodLLM      Method = "llm"
	MethodRule     Method = "rule"
	MethodFallback Method = "fallback"
)

// TranscriptSegment is one timed unit of speech-to-text output, per §3.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Range is a selected `[start, end)` interval in the source, tagged with
// the strategy that produced it.
type Range struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Method Method  `json:"method"`
}

func (r Range) Duration() float64 { return r.End - r.Start }

// ClipOutput is one rendered-and-uploaded clip, per §3.
type ClipOutput struct {
	FileName      string  `json:"file_name"`
	RemoteLocator string  `json:"remote_locator"`
	DurationSec   float64 `json:"duration_sec"`
	Segment       Range   `json:"segment"`
	Method        Method  `json:"method"`
}

// Job is the mutable aggregate tracked by the registry. All field access
// outside this package must go through Clone()/the update methods below —
// no entity besides the owning Worker may write to a Job after it leaves
// StatusQueued (§3).
type Job struct {
	mu sync.RWMutex

	JobID   string
	TraceID string

	Request Request

	Status   Status
	Progress float64
	Stage    Stage
	Message  string

	Outputs []ClipOutput
	Error   *errors.JobError

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a freshly queued Job for the given validated request.
func New(jobID, traceID string, req Request, now time.Time) *Job {
	return &Job{
		JobID:     jobID,
		TraceID:   traceID,
		Request:   req,
		Status:    StatusQueued,
		Progress:  0.0,
		Outputs:   make([]ClipOutput, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns an immutable snapshot safe for concurrent reads, per the
// Registry's `get` contract in §4.6.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	outputs := make([]ClipOutput, len(j.Outputs))
	copy(outputs, j.Outputs)

	var errCopy *errors.JobError
	if j.Error != nil {
		e := *j.Error
		errCopy = &e
	}

	return &Job{
		JobID:     j.JobID,
		TraceID:   j.TraceID,
		Request:   j.Request,
		Status:    j.Status,
		Progress:  j.Progress,
		Stage:     j.Stage,
		Message:   j.Message,
		Outputs:   outputs,
		Error:     errCopy,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// Start transitions queued -> running. Returns false if the Job wasn't queued.
func (j *Job) Start(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.Status, StatusRunning) {
		return false
	}
	j.Status = StatusRunning
	j.UpdatedAt = now
	return true
}

// SetStageProgress publishes a progress breakpoint (§4.6 table). progress
// never moves backwards and is ignored once the Job is terminal.
func (j *Job) SetStageProgress(now time.Time, stage Stage, progress float64, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusRunning {
		return
	}
	j.Stage = stage
	if progress > j.Progress {
		j.Progress = progress
	}
	if message != "" {
		j.Message = message
	}
	j.UpdatedAt = now
}

// AppendOutput records one successfully rendered+uploaded clip.
func (j *Job) AppendOutput(now time.Time, out ClipOutput) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Outputs = append(j.Outputs, out)
	j.UpdatedAt = now
}

// Finish transitions running -> done, setting progress to 1.0 exactly, per
// invariant 4 in §8.
func (j *Job) Finish(now time.Time, message string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.Status, StatusDone) {
		return false
	}
	j.Status = StatusDone
	j.Stage = StageDone
	j.Progress = 1.0
	j.Message = message
	j.UpdatedAt = now
	return true
}

// FailWith transitions running -> failed with a terminal JobError. Terminal
// status never changes (invariant 5, §8) so this is a no-op once already
// terminal.
func (j *Job) FailWith(now time.Time, jobErr *errors.JobError) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.Status, StatusFailed) {
		return false
	}
	j.Status = StatusFailed
	j.Error = jobErr
	j.Message = jobErr.Message
	j.UpdatedAt = now
	return true
}

// IsTerminal reports whether the Job has reached done or failed.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusDone || j.Status == StatusFailed
}

func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}
