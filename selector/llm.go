package selector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/log"
)

const llmRequestTimeout = 60 * time.Second

// LLMClient drives Strategy A (§4.3): a single-turn, JSON-mode chat
// completion request asking for a JSON array of candidate ranges.
type LLMClient struct {
	apiURL string
	apiKey string
	model  string
	client *http.Client
}

func NewLLMClient(apiURL, apiKey, model string) *LLMClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.Logger = nil
	return &LLMClient{apiURL: apiURL, apiKey: apiKey, model: model, client: retryClient.StandardClient()}
}

type llmRange struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Reason string  `json:"reason"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Propose builds the Strategy A prompt from the transcript and asks the
// configured LLM for a candidate Selection. It returns the raw (not yet
// post-validated) ranges; selector.tryLLM runs postValidate over the result.
func (c *LLMClient) Propose(ctx context.Context, traceID string, segments []job.TranscriptSegment, opts job.Options) ([]llmRange, error) {
	ctx, cancel := context.WithTimeout(ctx, llmRequestTimeout)
	defer cancel()

	prompt := buildPrompt(segments, opts)
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You select short-clip ranges from a video transcript and respond with JSON only."},
			{Role: "user", Content: prompt},
		},
	}
	reqBody.ResponseFormat.Type = "json_object"

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal LLM request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to build LLM request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("LLM returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("LLM response not valid JSON: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("LLM response contained no choices")
	}

	var ranges []llmRange
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &ranges); err != nil {
		var wrapped struct {
			Ranges []llmRange `json:"ranges"`
		}
		if err2 := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &wrapped); err2 != nil {
			log.LogWarn(traceID, "LLM content was not a JSON range array", "content", parsed.Choices[0].Message.Content)
			return nil, fmt.Errorf("LLM content not valid JSON range array: %w", err)
		}
		ranges = wrapped.Ranges
	}

	return ranges, nil
}

func buildPrompt(segments []job.TranscriptSegment, opts job.Options) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Language: %s\nTarget clip count: %d\nDuration bounds: [%.1f, %.1f] seconds\n\n", opts.Language, opts.TargetCount, opts.MinSec, opts.MaxSec)
	sb.WriteString("Transcript segments (index, start, end, text):\n")
	for i, seg := range segments {
		fmt.Fprintf(&sb, "%d\t%.2f\t%.2f\t%s\n", i, seg.Start, seg.End, seg.Text)
	}
	sb.WriteString("\nReturn a JSON array of exactly the target clip count objects, each {\"start\":seconds,\"end\":seconds,\"reason\":string}, formed by concatenating contiguous segments above.")
	return sb.String()
}

// postValidate applies §4.3's deterministic LLM-output validation: drop
// out-of-bounds-duration ranges, snap to transcript-segment boundaries,
// resolve overlaps by keeping the earliest-starting range.
func postValidate(raw []llmRange, segments []job.TranscriptSegment, opts job.Options) []job.Range {
	var candidates []job.Range
	for _, r := range raw {
		start, end := snapToSegmentBoundaries(r.Start, r.End, segments)
		duration := end - start
		if duration < opts.MinSec || duration > opts.MaxSec {
			continue
		}
		candidates = append(candidates, job.Range{Start: start, End: end, Method: job.MethodLLM})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start < candidates[j].Start
	})

	var resolved []job.Range
	for _, c := range candidates {
		overlaps := false
		for _, r := range resolved {
			if c.Start < r.End && r.Start < c.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			resolved = append(resolved, c)
		}
	}
	return resolved
}

// snapToSegmentBoundaries moves start/end to the nearest transcript-segment
// boundary without shrinking the range to exclude the boundary it's
// snapping toward (never changes which segment is considered included).
func snapToSegmentBoundaries(start, end float64, segments []job.TranscriptSegment) (float64, float64) {
	if len(segments) == 0 {
		return start, end
	}

	snappedStart := start
	bestStartDelta := -1.0
	for _, seg := range segments {
		delta := abs(seg.Start - start)
		if seg.Start <= start && (bestStartDelta < 0 || delta < bestStartDelta) {
			snappedStart = seg.Start
			bestStartDelta = delta
		}
	}

	snappedEnd := end
	bestEndDelta := -1.0
	for _, seg := range segments {
		delta := abs(seg.End - end)
		if seg.End >= end && (bestEndDelta < 0 || delta < bestEndDelta) {
			snappedEnd = seg.End
			bestEndDelta = delta
		}
	}

	return snappedStart, snappedEnd
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
