// Package selector implements the Selector (C3): turning a transcript into
// a Selection of clip-worthy ranges via the Strategy A -> B -> C fallback
// chain described in §4.3.
package selector

import (
	"context"
	"sort"

	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/log"
)

// Selector drives the LLM / rule-based / fallback strategies in order.
type Selector struct {
	llm *LLMClient // nil when no LLM credential is configured
}

func New(llm *LLMClient) *Selector {
	return &Selector{llm: llm}
}

// Select returns a Selection of up to opts.TargetCount ranges, per §4.3. It
// never returns an error: when neither the LLM nor the rule-based strategy
// yields min_guaranteed ranges, it returns the fallback strategy's three
// ranges instead.
func (s *Selector) Select(ctx context.Context, traceID string, segments []job.TranscriptSegment, sourceDuration float64, opts job.Options) []job.Range {
	if len(segments) == 0 {
		ranges := fallbackRanges(sourceDuration, opts)
		log.Log(traceID, "selector: empty transcript, using fallback strategy", "ranges", len(ranges))
		return ranges
	}

	if s.llm != nil && !opts.ForceRuleBased {
		if ranges, ok := s.tryLLM(ctx, traceID, segments, opts); ok {
			return ranges
		}
	}

	ranges := ruleBasedRanges(segments, opts)
	if len(ranges) < config.MinGuaranteedClips {
		log.LogWarn(traceID, "selector: rule-based strategy below min_guaranteed, using fallback", "produced", len(ranges))
		return fallbackRanges(sourceDuration, opts)
	}
	return ranges
}

func (s *Selector) tryLLM(ctx context.Context, traceID string, segments []job.TranscriptSegment, opts job.Options) ([]job.Range, bool) {
	raw, err := s.llm.Propose(ctx, traceID, segments, opts)
	if err != nil {
		log.LogWarn(traceID, "selector: LLM strategy failed, falling through to rule-based", "err", err.Error())
		return nil, false
	}

	validated := postValidate(raw, segments, opts)
	if len(validated) < config.MinGuaranteedClips {
		log.LogWarn(traceID, "selector: LLM output below min_guaranteed after validation, falling through", "valid", len(validated))
		return nil, false
	}

	switch {
	case len(validated) > opts.TargetCount:
		validated = validated[:opts.TargetCount]
	case len(validated) < opts.TargetCount:
		before := len(validated)
		validated = padWithRuleBased(validated, segments, opts)
		log.Log(traceID, "selector: LLM output below target_count, padded with rule-based ranges", "llm", before, "padded", len(validated)-before)
	}
	log.Log(traceID, "selector: LLM strategy produced ranges", "ranges", len(validated))
	return validated, true
}

// padWithRuleBased tops up a short LLM Selection with non-overlapping
// rule-based candidates, tagged method=rule per the padding recommendation
// in §9, then re-sorts the combined result chronologically per §8 property 3.
func padWithRuleBased(validated []job.Range, segments []job.TranscriptSegment, opts job.Options) []job.Range {
	need := opts.TargetCount - len(validated)
	if need <= 0 {
		return validated
	}

	combined := append([]job.Range{}, validated...)
	for _, c := range ruleBasedRanges(segments, opts) {
		if len(combined)-len(validated) >= need {
			break
		}
		if rangeOverlapsAny(c, combined) {
			continue
		}
		combined = append(combined, c)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Start < combined[j].Start
	})
	return combined
}

func rangeOverlapsAny(c job.Range, existing []job.Range) bool {
	for _, e := range existing {
		if c.Start < e.End && e.Start < c.End {
			return true
		}
	}
	return false
}
