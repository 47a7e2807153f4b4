package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultSkipped ResultLabel = "skipped"
	ResultWarning ResultLabel = "warning"
	ResultFatal   ResultLabel = "fatal"
)

// RunOutcome is the final status of a command run.
type RunOutcome string

const (
	OutcomeRegenerated RunOutcome = "regenerated"
	OutcomeUpToDate    RunOutcome = "up_to_date"
	OutcomeFailed      RunOutcome = "failed"
)

// ImageResult classifies the compressor's decision for one image.
type ImageResult string

const (
	ImageAlreadySmall ImageResult = "already_small"
	ImageCompressed   ImageResult = "compressed"
	ImageRenamed      ImageResult = "renamed"
	ImageKept         ImageResult = "kept"
	ImageFailed       ImageResult = "failed"
)

// Recorder defines observability hooks for runs, stages and images.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveRunDuration(kind string, d time.Duration)
	IncRunOutcome(kind string, outcome RunOutcome)
	SetArticlesEmitted(n int)
	AddAssetsCopied(n int)
	IncImageResult(result ImageResult)
	AddImageBytesSaved(n int64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveRunDuration(string, time.Duration)   {}
func (NoopRecorder) IncRunOutcome(string, RunOutcome)           {}
func (NoopRecorder) SetArticlesEmitted(int)                     {}
func (NoopRecorder) AddAssetsCopied(int)                        {}
func (NoopRecorder) IncImageResult(ImageResult)                 {}
func (NoopRecorder) AddImageBytesSaved(int64)                   {}
