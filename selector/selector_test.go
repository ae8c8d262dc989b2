package selector

import (
	"context"
	"testing"

	"github.com/livepeer/clip-job-server/job"
	"github.com/stretchr/testify/require"
)

func TestSelectEmptyTranscriptUsesFallback(t *testing.T) {
	s := New(nil)
	ranges := s.Select(context.Background(), "trace", nil, 600, job.Options{TargetCount: 5, MinSec: 25, MaxSec: 45})

	require.Len(t, ranges, 3)
	for _, r := range ranges {
		require.Equal(t, job.MethodFallback, r.Method)
	}
}

func TestSelectNoLLMConfiguredUsesRuleBased(t *testing.T) {
	s := New(nil)
	segs := segmentsOfLength(120, 5)
	ranges := s.Select(context.Background(), "trace", segs, 600, job.Options{TargetCount: 5, MinSec: 25, MaxSec: 45})

	require.NotEmpty(t, ranges)
	for _, r := range ranges {
		require.Equal(t, job.MethodRule, r.Method)
	}
}

func TestSelectForceRuleBasedSkipsLLM(t *testing.T) {
	srv := chatServerReturning(t, `[{"start":0,"end":30}]`)
	defer srv.Close()

	s := New(NewLLMClient(srv.URL, "key", "model"))
	segs := segmentsOfLength(120, 5)
	ranges := s.Select(context.Background(), "trace", segs, 600, job.Options{TargetCount: 5, MinSec: 25, MaxSec: 45, ForceRuleBased: true})

	for _, r := range ranges {
		require.Equal(t, job.MethodRule, r.Method)
	}
}

func TestSelectLLMMalformedFallsThroughToRuleBased(t *testing.T) {
	srv := chatServerReturning(t, "I cannot do this")
	defer srv.Close()

	s := New(NewLLMClient(srv.URL, "key", "model"))
	segs := segmentsOfLength(120, 5)
	ranges := s.Select(context.Background(), "trace", segs, 600, job.Options{TargetCount: 5, MinSec: 25, MaxSec: 45})

	require.NotEmpty(t, ranges)
	for _, r := range ranges {
		require.Equal(t, job.MethodRule, r.Method)
	}
}

func TestSelectLLMPartialSuccessPadsWithRuleBased(t *testing.T) {
	srv := chatServerReturning(t, `[{"start":0,"end":30},{"start":30,"end":60},{"start":60,"end":90}]`)
	defer srv.Close()

	s := New(NewLLMClient(srv.URL, "key", "model"))
	segs := segmentsOfLength(120, 5)
	ranges := s.Select(context.Background(), "trace", segs, 600, job.Options{TargetCount: 5, MinSec: 25, MaxSec: 45})
	require.Len(t, ranges, 5)

	var llmCount, ruleCount int
	for i, r := range ranges {
		switch r.Method {
		case job.MethodLLM:
			llmCount++
		case job.MethodRule:
			ruleCount++
		default:
			t.Fatalf("unexpected method %q on padded selection", r.Method)
		}
		if i > 0 {
			require.Less(t, ranges[i-1].Start, r.Start, "padded selection must stay chronologically ordered")
			require.LessOrEqual(t, ranges[i-1].End, r.Start, "padded selection must stay non-overlapping")
		}
	}
	require.Equal(t, 3, llmCount, "the 3 valid LLM ranges must survive untouched")
	require.Equal(t, 2, ruleCount, "short LLM output must be topped up to target_count via rule-based padding")
}

func TestSelectLLMSuccessUsesLLMRanges(t *testing.T) {
	srv := chatServerReturning(t, `[{"start":0,"end":30},{"start":30,"end":60},{"start":60,"end":90}]`)
	defer srv.Close()

	s := New(NewLLMClient(srv.URL, "key", "model"))
	segs := segmentsOfLength(120, 5)
	ranges := s.Select(context.Background(), "trace", segs, 600, job.Options{TargetCount: 3, MinSec: 25, MaxSec: 45})

	require.Len(t, ranges, 3)
	for _, r := range ranges {
		require.Equal(t, job.MethodLLM, r.Method)
	}
}
