package app

import "time"

// PanelState is the single user-facing state of the capture pipeline.
// Exactly one variant holds at any time.
type PanelState interface{ panelState() }

// Idle means nothing is in flight.
type Idle struct{}

// Recording means audio capture is running.
type Recording struct {
	Path      string
	StartedAt time.Time
}

// Transcribing means the finished recording is being uploaded. Progress is
// in [0,1] and never decreases within one upload.
type Transcribing struct {
	Progress float64
}

// Success holds the transcribed text of the last completed pipeline run.
type Success struct {
	Text string
}

// Failure holds a user-facing description of what went wrong.
type Failure struct {
	Message string
}

func (Idle) panelState()         {}
func (Recording) panelState()    {}
func (Transcribing) panelState() {}
func (Success) panelState()      {}
func (Failure) panelState()      {}

// ContextState tracks the history-reference verdict for the latest
// transcript. It is advisory only and never influences PanelState.
type ContextState interface{ contextState() }

// ContextNone means no check has been requested for the current transcript.
type ContextNone struct{}

// ContextChecking means a classification request is in flight.
type ContextChecking struct{}

// ContextResult carries the classifier's verdict.
type ContextResult struct {
	Referenced bool
}

// ContextError carries a user-facing description of a failed check.
type ContextError struct {
	Message string
}

func (ContextNone) contextState()     {}
func (ContextChecking) contextState() {}
func (ContextResult) contextState()   {}
func (ContextError) contextState()    {}
