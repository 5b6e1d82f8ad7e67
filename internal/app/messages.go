package app

import (
	"time"

	"murmur/internal/db"
	"murmur/internal/record"
)

// RecordingStartedMsg is sent when the recorder has opened the input device
// and capture is running.
type RecordingStartedMsg struct {
	Path      string
	StartedAt time.Time
}

// RecordingFailedMsg is sent when a recording could not be started.
type RecordingFailedMsg struct {
	Err error
}

// RecordingStoppedMsg carries the finished recording after a stop.
type RecordingStoppedMsg struct {
	Done record.Completion
}

// StopFailedMsg is sent when stopping or verifying the recording failed.
type StopFailedMsg struct {
	Err error
}

// RecordingAbortedMsg is sent after an in-flight recording was discarded.
type RecordingAbortedMsg struct {
	Err error
}

// UploadProgressMsg carries upload progress streamed from the transcriber.
type UploadProgressMsg struct {
	Progress float64
}

// ProgressStreamClosedMsg signals that no further progress will arrive.
type ProgressStreamClosedMsg struct{}

// TranscriptReadyMsg carries the transcribed text of a finished upload.
type TranscriptReadyMsg struct {
	Text string
}

// TranscribeFailedMsg is sent when the upload or response parsing failed.
type TranscribeFailedMsg struct {
	Err error
}

// TranscriptSavedMsg carries the result of persisting a transcript.
type TranscriptSavedMsg struct {
	Err error
}

// HistoryLoadedMsg carries recent transcripts loaded from SQLite.
type HistoryLoadedMsg struct {
	Records []db.Transcript
}

// ContextVerdictMsg carries the classifier's answer for the latest
// transcript, or the error that prevented one.
type ContextVerdictMsg struct {
	Referenced bool
	Err        error
}

// RecordTickMsg redraws the elapsed-time readout while recording.
type RecordTickMsg time.Time
