package selector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livepeer/clip-job-server/job"
	"github.com/stretchr/testify/require"
)

func chatServerReturning(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestLLMClientProposeParsesRangeArray(t *testing.T) {
	srv := chatServerReturning(t, `[{"start":0,"end":30,"reason":"intro"},{"start":30,"end":60,"reason":"body"}]`)
	defer srv.Close()

	c := NewLLMClient(srv.URL, "key", "gpt-test")
	ranges, err := c.Propose(context.Background(), "trace", segmentsOfLength(20, 5), job.Options{Language: "en", TargetCount: 2, MinSec: 25, MaxSec: 45})
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	require.Equal(t, 30.0, ranges[0].End)
}

func TestLLMClientProposeMalformedContentErrors(t *testing.T) {
	srv := chatServerReturning(t, "I cannot do this")
	defer srv.Close()

	c := NewLLMClient(srv.URL, "key", "gpt-test")
	_, err := c.Propose(context.Background(), "trace", segmentsOfLength(20, 5), job.Options{Language: "en", TargetCount: 2, MinSec: 25, MaxSec: 45})
	require.Error(t, err)
}

func TestPostValidateDropsOutOfBoundsDuration(t *testing.T) {
	segs := segmentsOfLength(20, 5)
	raw := []llmRange{
		{Start: 0, End: 10}, // too short
		{Start: 0, End: 30}, // ok
	}
	out := postValidate(raw, segs, job.Options{MinSec: 25, MaxSec: 45})
	require.Len(t, out, 1)
	require.Equal(t, job.MethodLLM, out[0].Method)
}

func TestPostValidateResolvesOverlapsKeepingEarliestStart(t *testing.T) {
	segs := segmentsOfLength(20, 5)
	raw := []llmRange{
		{Start: 0, End: 30},
		{Start: 10, End: 40}, // overlaps the first
	}
	out := postValidate(raw, segs, job.Options{MinSec: 25, MaxSec: 45})
	require.Len(t, out, 1)
	require.Equal(t, 0.0, out[0].Start)
}

func TestSnapToSegmentBoundaries(t *testing.T) {
	segs := segmentsOfLength(20, 5)
	start, end := snapToSegmentBoundaries(3, 28, segs)
	require.Equal(t, 0.0, start)
	require.Equal(t, 30.0, end)
}
