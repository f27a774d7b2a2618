package pipeline

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/docscan/internal/classify"
	"github.com/MeKo-Tech/docscan/internal/extract"
	"github.com/MeKo-Tech/docscan/internal/preprocess"
	"github.com/MeKo-Tech/docscan/internal/recognition"
)

// State is the lifecycle position of a Pipeline.
type State int

const (
	StateIdle State = iota
	StatePreprocessing
	StateRecognizing
	StateClassifyingExtracting
	StateDone
	StateError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreprocessing:
		return "preprocessing"
	case StateRecognizing:
		return "recognizing"
	case StateClassifyingExtracting:
		return "classifying_extracting"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError || s == StateCancelled
}

// transitions lists the legal successors of every state.
var transitions = map[State][]State{
	StateIdle:                  {StatePreprocessing, StateCancelled},
	StatePreprocessing:         {StateRecognizing, StateError, StateCancelled},
	StateRecognizing:           {StateClassifyingExtracting, StateError, StateCancelled},
	StateClassifyingExtracting: {StateDone, StateError, StateCancelled},
	StateDone:                  {StateIdle},
	StateError:                 {StateIdle},
	StateCancelled:             {StateIdle},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	// ErrBusy is returned by TryRun when another run holds the pipeline.
	ErrBusy = errors.New("pipeline busy: a run is already in flight")
	// ErrRunning is returned by Reset while a run is in flight.
	ErrRunning = errors.New("pipeline is running")
	// ErrNoImage is returned when a request carries no image bytes.
	ErrNoImage = errors.New("no image data provided")
)

// CancelledError reports a run that stopped because its context ended.
// errors.Is(err, context.Canceled) holds when the caller cancelled.
type CancelledError struct {
	Stage State
	Err   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("pipeline cancelled during %s: %v", e.Stage, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// Request is the input of one run. Nil overrides fall back to the
// pipeline configuration.
type Request struct {
	Image     []byte
	Filename  string
	Languages []string
	Options   *preprocess.Options
	Policy    *recognition.Policy
	Progress  StageSink
}

// ExtractionResult is the complete output of a successful run.
// ConfidenceMeasured is false when the engine reported no native score and
// Confidence is a fixed default rather than a measurement.
type ExtractionResult struct {
	RunID              string                `json:"run_id" yaml:"run_id"`
	Filename           string                `json:"filename,omitempty" yaml:"filename,omitempty"`
	Success            bool                  `json:"success" yaml:"success"`
	Text               string                `json:"text" yaml:"text"`
	Confidence         float64               `json:"confidence" yaml:"confidence"`
	ConfidenceMeasured bool                  `json:"confidence_measured" yaml:"confidence_measured"`
	Engine             string                `json:"engine" yaml:"engine"`
	ProcessingTimeMs   int64                 `json:"processing_time_ms" yaml:"processing_time_ms"`
	DocumentType       classify.DocumentType `json:"document_type" yaml:"document_type"`
	DocumentLabel      string                `json:"document_label" yaml:"document_label"`
	ExtractedFields    []extract.Field       `json:"extracted_fields" yaml:"extracted_fields"`
	Lines              []string              `json:"lines" yaml:"lines"`
	WordCount          int                   `json:"word_count" yaml:"word_count"`
	Preprocessed       bool                  `json:"preprocessed" yaml:"preprocessed"`
	FallbackUsed       bool                  `json:"fallback_used" yaml:"fallback_used"`
	Languages          []string              `json:"languages" yaml:"languages"`
	Warnings           []string              `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Timing             StageTiming           `json:"timing" yaml:"timing"`
}

// StageTiming breaks the processing time down by stage.
type StageTiming struct {
	PreprocessMs int64 `json:"preprocess_ms" yaml:"preprocess_ms"`
	RecognizeMs  int64 `json:"recognize_ms" yaml:"recognize_ms"`
	ExtractMs    int64 `json:"extract_ms" yaml:"extract_ms"`
}

// FieldsByType returns the values of every field of the given type in order.
func (r *ExtractionResult) FieldsByType(t extract.FieldType) []string {
	var out []string
	for _, f := range r.ExtractedFields {
		if f.Type == t {
			out = append(out, f.Value)
		}
	}
	return out
}
