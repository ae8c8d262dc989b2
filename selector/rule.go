package selector

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/livepeer/clip-job-server/job"
)

// sentenceTerminalPunctuation covers Latin and Japanese sentence-final marks.
var sentenceTerminalPunctuation = []string{".", "!", "?", "。", "！", "？"}

func hasSentenceTerminalPunctuation(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, p := range sentenceTerminalPunctuation {
		if strings.HasSuffix(trimmed, p) {
			return true
		}
	}
	return false
}

// scoreSegment computes Strategy B's composite score (§4.3): normalized
// text length, a bonus for sentence-terminal punctuation, and a cold-open
// penalty for segments within the source's first 10%.
func scoreSegment(seg job.TranscriptSegment, index int, sourceStart, sourceEnd float64) float64 {
	textLen := float64(utf8.RuneCountInString(strings.TrimSpace(seg.Text)))
	score := textLen / 80.0 // normalized against a ~80-char "full" segment
	if score > 1.0 {
		score = 1.0
	}

	if hasSentenceTerminalPunctuation(seg.Text) {
		score += 0.25
	}

	if sourceEnd > sourceStart {
		position := (seg.Start - sourceStart) / (sourceEnd - sourceStart)
		if position < 0.10 {
			score -= 0.5 // cold-open penalty
		}
	}

	return score
}

type rangeCandidate struct {
	start, end float64
	score      float64
}

// ruleBasedRanges implements Strategy B in full: greedy range construction
// from the highest-scoring unassigned segment, extended forward until
// min_sec is reached (and further while <= max_sec and the next segment
// still improves score), rejecting any candidate overlapping an
// already-selected range. Output is ordered chronologically; ties break on
// earlier start, then shorter range, per the determinism contract in §4.3.
func ruleBasedRanges(segments []job.TranscriptSegment, opts job.Options) []job.Range {
	if len(segments) == 0 {
		return nil
	}

	sourceStart := segments[0].Start
	sourceEnd := segments[len(segments)-1].End

	scores := make([]float64, len(segments))
	for i, seg := range segments {
		scores[i] = scoreSegment(seg, i, sourceStart, sourceEnd)
	}

	order := make([]int, len(segments))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	used := make([]bool, len(segments))
	var selected []rangeCandidate

	for _, start := range order {
		if len(selected) >= opts.TargetCount {
			break
		}
		if used[start] {
			continue
		}

		end := start
		duration := segments[end].End - segments[start].Start
		for duration < opts.MinSec && end+1 < len(segments) {
			end++
			duration = segments[end].End - segments[start].Start
		}
		for end+1 < len(segments) {
			nextDuration := segments[end+1].End - segments[start].Start
			if nextDuration > opts.MaxSec {
				break
			}
			if scores[end+1] <= 0 {
				break
			}
			end++
			duration = nextDuration
		}

		if duration < opts.MinSec || duration > opts.MaxSec {
			continue
		}

		candidate := rangeCandidate{start: segments[start].Start, end: segments[end].End, score: scores[start]}
		if overlapsAny(candidate, selected) {
			continue
		}

		for i := start; i <= end; i++ {
			used[i] = true
		}
		selected = append(selected, candidate)
	}

	sort.SliceStable(selected, func(a, b int) bool {
		if selected[a].start != selected[b].start {
			return selected[a].start < selected[b].start
		}
		return (selected[a].end - selected[a].start) < (selected[b].end - selected[b].start)
	})

	ranges := make([]job.Range, len(selected))
	for i, c := range selected {
		ranges[i] = job.Range{Start: c.start, End: c.end, Method: job.MethodRule}
	}
	return ranges
}

func overlapsAny(c rangeCandidate, existing []rangeCandidate) bool {
	for _, e := range existing {
		if c.start < e.end && e.start < c.end {
			return true
		}
	}
	return false
}
