// Package event defines the immutable records the performance collector
// works with. Records are built through per-kind constructors so that
// validation happens once, at construction time, instead of at every
// call site.
package event

import (
	"fmt"
	"time"
)

// Kind identifies the category of a recorded performance event.
type Kind string

// The closed set of event kinds the collector accepts.
const (
	ModelLoad       Kind = "ModelLoad"
	Inference       Kind = "Inference"
	Preprocessing   Kind = "Preprocessing"
	TotalProcessing Kind = "TotalProcessing"
	Error           Kind = "Error"
)

// ParseKind converts a string into a Kind, rejecting anything outside
// the closed set.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case ModelLoad, Inference, Preprocessing, TotalProcessing, Error:
		return Kind(s), nil
	}
	return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", s)}
}

// ValidationError reports structurally invalid input to a logging call,
// e.g. a negative duration. It is surfaced immediately and nothing is
// recorded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Event is one timed occurrence reported to the metrics core. Once
// appended to a store it is never mutated or removed.
type Event struct {
	Kind            Kind           `json:"kind"`
	Subject         string         `json:"subject"`
	Timestamp       time.Time      `json:"timestamp"`
	DurationSeconds float64        `json:"duration_seconds"`
	Device          string         `json:"device,omitempty"`
	InputSize       int            `json:"input_size,omitempty"`
	OutputSize      int            `json:"output_size,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Failed reports whether the event counts against the error rate of its
// bucket. Error events always do; any other event can opt in by carrying
// extra["failed"] = true.
func (e Event) Failed() bool {
	if e.Kind == Error {
		return true
	}
	failed, _ := e.Extra["failed"].(bool)
	return failed
}

func checkDuration(seconds float64) error {
	if seconds < 0 {
		return &ValidationError{
			Field:  "duration_seconds",
			Reason: fmt.Sprintf("must be non-negative, got %v", seconds),
		}
	}
	return nil
}

func checkSize(field string, n int) error {
	if n < 0 {
		return &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("must be non-negative, got %d", n),
		}
	}
	return nil
}

// NewModelLoad describes one model load. The model identifier is the
// bucket subject.
func NewModelLoad(model string, seconds float64, device string) (Event, error) {
	if err := checkDuration(seconds); err != nil {
		return Event{}, err
	}
	return Event{
		Kind:            ModelLoad,
		Subject:         model,
		DurationSeconds: seconds,
		Device:          device,
		Extra:           map[string]any{"model": model},
	}, nil
}

// NewInference describes one inference call. The subject (typically a
// chunk identifier) is the bucket key; the model travels in extra.
// Throughput is input characters per second, 0 when the duration is 0.
func NewInference(model string, seconds float64, inputLen, outputLen int, subject string) (Event, error) {
	if err := checkDuration(seconds); err != nil {
		return Event{}, err
	}
	if err := checkSize("input_size", inputLen); err != nil {
		return Event{}, err
	}
	if err := checkSize("output_size", outputLen); err != nil {
		return Event{}, err
	}
	return Event{
		Kind:            Inference,
		Subject:         subject,
		DurationSeconds: seconds,
		InputSize:       inputLen,
		OutputSize:      outputLen,
		Extra: map[string]any{
			"model":      model,
			"throughput": throughput(inputLen, seconds),
		},
	}, nil
}

// NewPreprocessing describes one preprocessing step. The operation name
// is the bucket subject.
func NewPreprocessing(operation string, seconds float64, textLen, chunkCount int) (Event, error) {
	if err := checkDuration(seconds); err != nil {
		return Event{}, err
	}
	if err := checkSize("input_size", textLen); err != nil {
		return Event{}, err
	}
	if err := checkSize("chunk_count", chunkCount); err != nil {
		return Event{}, err
	}
	return Event{
		Kind:            Preprocessing,
		Subject:         operation,
		DurationSeconds: seconds,
		InputSize:       textLen,
		Extra: map[string]any{
			"operation":   operation,
			"chunk_count": chunkCount,
			"throughput":  throughput(textLen, seconds),
		},
	}, nil
}

// NewTotalProcessing describes one end-to-end summarization run. The
// error rate is errorCount/chunkCount, 0 when no chunks were processed.
func NewTotalProcessing(seconds float64, chunkCount, successCount, errorCount int) (Event, error) {
	if err := checkDuration(seconds); err != nil {
		return Event{}, err
	}
	if err := checkSize("chunk_count", chunkCount); err != nil {
		return Event{}, err
	}
	if err := checkSize("success_count", successCount); err != nil {
		return Event{}, err
	}
	if err := checkSize("error_count", errorCount); err != nil {
		return Event{}, err
	}
	errorRate := 0.0
	if chunkCount > 0 {
		errorRate = float64(errorCount) / float64(chunkCount)
	}
	return Event{
		Kind:            TotalProcessing,
		DurationSeconds: seconds,
		Extra: map[string]any{
			"chunk_count":   chunkCount,
			"success_count": successCount,
			"error_count":   errorCount,
			"error_rate":    errorRate,
		},
	}, nil
}

// NewError describes a failure in an instrumented operation. The source
// (error category) is the bucket subject. Callers may record an Error
// event alongside, or instead of, the success event for the same call.
func NewError(source, message string, metadata map[string]any) Event {
	extra := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		extra[k] = v
	}
	extra["message"] = message
	return Event{
		Kind:    Error,
		Subject: source,
		Extra:   extra,
	}
}

func throughput(size int, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(size) / seconds
}
