// Package record owns the microphone capture session and its output file.
package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var ErrEmptyRecording = errors.New("recording file is empty")

// Completion is emitted when a recording has been finalized and verified.
// Ownership of the file transfers to the receiver.
type Completion struct {
	Path       string
	Compressed bool
	StartedAt  time.Time
}

// Recorder captures microphone audio into rec_<unix>.wav or rec_<unix>.m4a
// files. At most one session is active per Recorder.
type Recorder struct {
	dev  Device
	gate *Gate
	dir  string
	log  *log.Logger

	// sink construction is injectable so tests can observe or fail writes.
	newSink func(path string, compressed bool, sampleRate, channels int) (sink, error)

	mu     sync.Mutex
	active *session
}

type session struct {
	path       string
	compressed bool
	startedAt  time.Time
	stream     Stream

	frames      chan []int16
	quit        chan struct{}
	captureDone chan struct{}
	writeDone   chan error
}

func New(dev Device, gate *Gate, dir string, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{dev: dev, gate: gate, dir: dir, log: logger, newSink: newSink}
}

// Start begins capturing. While a session is active it is idempotent and
// returns the in-progress path without opening a second stream.
func (r *Recorder) Start(ctx context.Context, compressed bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return r.active.path, nil
	}

	if err := r.gate.Authorize(ctx); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}

	ext := "wav"
	if compressed {
		ext = "m4a"
	}
	path := filepath.Join(r.dir, fmt.Sprintf("rec_%d.%s", time.Now().Unix(), ext))

	stream, err := r.dev.Open()
	if err != nil {
		return "", err
	}
	snk, err := r.newSink(path, compressed, stream.SampleRate(), stream.Channels())
	if err != nil {
		_ = stream.Close()
		return "", err
	}

	s := &session{
		path:        path,
		compressed:  compressed,
		startedAt:   time.Now(),
		stream:      stream,
		frames:      make(chan []int16, 64),
		quit:        make(chan struct{}),
		captureDone: make(chan struct{}),
		writeDone:   make(chan error, 1),
	}
	r.active = s

	go r.capture(s)
	go r.drain(s, snk)

	r.log.Debug("recording started", "path", path, "rate", stream.SampleRate(), "channels", stream.Channels())
	return path, nil
}

// Stop finalizes the active session and returns the completed recording. It
// is an idempotent no-op when nothing is recording. The file is verified to
// exist with nonzero size before the completion is handed out; a failed
// verification surfaces as an error rather than a silent drop.
func (r *Recorder) Stop() (Completion, error) {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()

	if s == nil {
		return Completion{}, nil
	}

	if err := r.finish(s); err != nil {
		return Completion{}, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return Completion{}, fmt.Errorf("verify recording: %w", err)
	}
	if info.Size() == 0 {
		return Completion{}, fmt.Errorf("verify recording %s: %w", s.path, ErrEmptyRecording)
	}

	r.log.Debug("recording completed", "path", s.path, "bytes", info.Size())
	return Completion{Path: s.path, Compressed: s.compressed, StartedAt: s.startedAt}, nil
}

// Abort discards the active session and deletes its partial file.
func (r *Recorder) Abort() error {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()

	if s == nil {
		return nil
	}

	if err := r.finish(s); err != nil {
		r.log.Warn("abort: session teardown failed", "err", err)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard recording: %w", err)
	}
	r.log.Debug("recording discarded", "path", s.path)
	return nil
}

// Recording reports whether a capture session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recorder) finish(s *session) error {
	close(s.quit)
	_ = s.stream.Close()
	<-s.captureDone
	return <-s.writeDone
}

// capture pulls frames off the stream and hands them to the writer. The
// buffered channel keeps file I/O out of the capture loop.
func (r *Recorder) capture(s *session) {
	defer close(s.captureDone)
	defer close(s.frames)

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		buf, err := s.stream.Read()
		if err != nil {
			select {
			case <-s.quit:
			default:
				r.log.Warn("capture read failed", "err", err)
			}
			return
		}

		select {
		case s.frames <- buf:
		case <-s.quit:
			return
		}
	}
}

// drain is the single writer goroutine; write order matches capture order.
func (r *Recorder) drain(s *session, snk sink) {
	var firstErr error
	for frames := range s.frames {
		if firstErr != nil {
			continue
		}
		if err := snk.write(frames); err != nil {
			firstErr = err
		}
	}
	if err := snk.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.writeDone <- firstErr
}
