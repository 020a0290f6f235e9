// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"time"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// Attempt outcomes reported to a Recorder.
const (
	OutcomePDF    = "pdf"
	OutcomeNotPDF = "not_pdf"
	OutcomeError  = "error"
)

// Result outcomes reported to a Recorder.
const (
	ResultPDF          = "pdf"
	ResultInstructions = "instructions"
	ResultFailed       = "failed"
)

// Recorder receives acquisition telemetry.
type Recorder interface {
	// ObserveAttempt is called once per candidate URL fetched.
	ObserveAttempt(source, outcome string, elapsed time.Duration)
	// ObserveResult is called once per Acquire call.
	ObserveResult(outcome string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ObserveAttempt(string, string, time.Duration) {}
func (NopRecorder) ObserveResult(string)                         {}

func resultOutcome(r types.AcquisitionResult) string {
	switch {
	case r.IsPDF():
		return ResultPDF
	case r.IsFallback():
		return ResultInstructions
	default:
		return ResultFailed
	}
}
