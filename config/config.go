package config

import "time"

var Version string
var Commit string

// Used so that we can generate fixed timestamps in tests.
var Clock TimestampGenerator = RealTimestampGenerator{}

// Default number of Workers allowed to run jobs concurrently (§4.6, §5).
const DefaultMaxConcurrentJobs = 2

// Default cap on the number of jobs allowed to sit queued (§6, 429 threshold).
const DefaultMaxQueueDepth = 32

// Default overall wall-clock budget for one job (§5).
const DefaultJobTimeoutSecs = 30 * 60

// Default wall-clock budget for transcribing a ~1-hour source (§4.2).
const DefaultTranscribeTimeoutSecs = 30 * 60

// The maximum allowed source file size before it's rejected as SourceUnusable (§4.1).
const MaxInputFileSizeBytes = 2 * 1024 * 1024 * 1024 // 2 GiB

// min_guaranteed, fixed per the glossary.
const MinGuaranteedClips = 3

var RetryBaseDelay = 2 * time.Second
var RetryMaxDelay = 30 * time.Second
var RetryJitterFraction = 0.25
var RetryMaxAttempts uint64 = 3
