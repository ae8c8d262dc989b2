package job

import (
	"fmt"

	"github.com/livepeer/clip-job-server/errors"
)

// SourceType is the closed set of ways a caller may reference the source
// video, per §3.
type SourceType string

const (
	SourceDrive SourceType = "drive"
	SourceURL   SourceType = "url"
)

const (
	defaultTargetCount    = 5
	minTargetCount        = 3
	maxTargetCount        = 8
	defaultMinSec         = 25.0
	defaultMaxSec         = 45.0
	defaultLanguage       = "ja"
	defaultWhisperModel   = "small"
	minGuaranteedClips    = 3
	defaultSubtitleFont   = "Arial"
	defaultSubtitleSize   = 48
	defaultSubtitleOutln  = "&H00000000"
	defaultSubtitleFillCl = "&H00FFFFFF"
)

// SubtitleStyle carries the renderer-facing subtitle defaults, with a
// per-request override limited to font size and fill color per the Open
// Questions resolution in §9 (documented in DESIGN.md).
type SubtitleStyle struct {
	FontFamily string  `json:"font_family"`
	FontSize   float64 `json:"font_size"`
	OutlineColor string `json:"outline_color"`
	FillColor    string `json:"fill_color"`
}

func defaultSubtitleStyle() SubtitleStyle {
	return SubtitleStyle{
		FontFamily:   defaultSubtitleFont,
		FontSize:     defaultSubtitleSize,
		OutlineColor: defaultSubtitleOutln,
		FillColor:    defaultSubtitleFillCl,
	}
}

// WhisperModel is the closed set of speech-to-text model sizes, per §3.
type WhisperModel string

const (
	WhisperTiny   WhisperModel = "tiny"
	WhisperBase   WhisperModel = "base"
	WhisperSmall  WhisperModel = "small"
	WhisperMedium WhisperModel = "medium"
)

func (m WhisperModel) valid() bool {
	switch m {
	case WhisperTiny, WhisperBase, WhisperSmall, WhisperMedium, "":
		return true
	default:
		return false
	}
}

// Options is the closed, versioned options schema called for by the
// "Dynamic option bags" re-architecture note in §9: explicit fields,
// explicit defaults, validated at the HTTP boundary rather than a loose
// key/value bag threaded unchecked into the pipeline.
type Options struct {
	TargetCount    int           `json:"target_count,omitempty"`
	MinSec         float64       `json:"min_sec,omitempty"`
	MaxSec         float64       `json:"max_sec,omitempty"`
	Language       string        `json:"language,omitempty"`
	WhisperModel   WhisperModel  `json:"whisper_model,omitempty"`
	ForceRuleBased bool          `json:"force_rule_based,omitempty"`
	SubtitleStyle  SubtitleStyle `json:"subtitle_style,omitempty"`
}

// WithDefaults clamps/fills Options per §3, never mutating the receiver.
func (o Options) WithDefaults() Options {
	out := o

	if out.TargetCount == 0 {
		out.TargetCount = defaultTargetCount
	}
	if out.TargetCount < minTargetCount {
		out.TargetCount = minTargetCount
	}
	if out.TargetCount > maxTargetCount {
		out.TargetCount = maxTargetCount
	}

	if out.MinSec == 0 {
		out.MinSec = defaultMinSec
	}
	if out.MaxSec == 0 {
		out.MaxSec = defaultMaxSec
	}
	if out.MaxSec < out.MinSec {
		out.MaxSec = out.MinSec
	}

	if out.Language == "" {
		out.Language = defaultLanguage
	}
	if out.WhisperModel == "" {
		out.WhisperModel = WhisperSmall
	}

	style := defaultSubtitleStyle()
	if out.SubtitleStyle.FontSize != 0 {
		style.FontSize = out.SubtitleStyle.FontSize
	}
	if out.SubtitleStyle.FillColor != "" {
		style.FillColor = out.SubtitleStyle.FillColor
	}
	out.SubtitleStyle = style

	return out
}

// Validate rejects a request schema/validation failure per §7 BadRequest.
func (o Options) Validate() error {
	if !o.WhisperModel.valid() {
		return errors.NewJobError(errors.BadRequest, fmt.Sprintf("invalid whisper_model %q", o.WhisperModel), "", nil)
	}
	if o.MaxSec != 0 && o.MinSec != 0 && o.MaxSec < o.MinSec {
		return errors.NewJobError(errors.BadRequest, "max_sec must be >= min_sec", "", nil)
	}
	return nil
}

// Request is the JobRequest body a caller submits, per §3.
type Request struct {
	SourceType  SourceType `json:"source_type"`
	DriveFileID string     `json:"drive_file_id,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
	TitleHint   string     `json:"title_hint,omitempty"`
	Options     Options    `json:"options,omitempty"`
}

// Validate enforces the exactly-one-of source fields rule and delegates to
// Options.Validate, per §3.
func (r Request) Validate() error {
	switch r.SourceType {
	case SourceDrive, SourceURL:
	default:
		return errors.NewJobError(errors.BadRequest, fmt.Sprintf("unknown source_type %q", r.SourceType), "", nil)
	}

	hasDrive := r.DriveFileID != ""
	hasURL := r.SourceURL != ""
	if hasDrive == hasURL {
		return errors.NewJobError(errors.BadRequest, "exactly one of drive_file_id or source_url must be set", "", nil)
	}
	if r.SourceType == SourceDrive && !hasDrive {
		return errors.NewJobError(errors.BadRequest, "source_type=drive requires drive_file_id", "", nil)
	}
	if r.SourceType == SourceURL && !hasURL {
		return errors.NewJobError(errors.BadRequest, "source_type=url requires source_url", "", nil)
	}

	return r.Options.Validate()
}

// WithDefaults returns a copy of r with Options defaulted/clamped.
func (r Request) WithDefaults() Request {
	out := r
	out.Options = r.Options.WithDefaults()
	return out
}

// MergeOptionsOverride applies a retry's optional Options override on top of
// the original request's options (§4.6 retry contract): only non-zero
// fields in override replace the original.
func (r Request) MergeOptionsOverride(override *Options) Request {
	if override == nil {
		return r
	}
	merged := r.Options
	if override.TargetCount != 0 {
		merged.TargetCount = override.TargetCount
	}
	if override.MinSec != 0 {
		merged.MinSec = override.MinSec
	}
	if override.MaxSec != 0 {
		merged.MaxSec = override.MaxSec
	}
	if override.Language != "" {
		merged.Language = override.Language
	}
	if override.WhisperModel != "" {
		merged.WhisperModel = override.WhisperModel
	}
	if override.ForceRuleBased {
		merged.ForceRuleBased = true
	}
	if override.SubtitleStyle.FontSize != 0 {
		merged.SubtitleStyle.FontSize = override.SubtitleStyle.FontSize
	}
	if override.SubtitleStyle.FillColor != "" {
		merged.SubtitleStyle.FillColor = override.SubtitleStyle.FillColor
	}

	out := r
	out.Options = merged
	return out
}
