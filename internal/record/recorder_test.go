package record

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-audio/wav"
)

// fakeStream serves a fixed set of frames, then blocks until closed.
type fakeStream struct {
	frames   [][]int16
	idx      int
	rate     int
	channels int

	exhausted chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	exOnce    sync.Once
}

func newFakeStream(frames [][]int16, rate, channels int) *fakeStream {
	return &fakeStream{
		frames:    frames,
		rate:      rate,
		channels:  channels,
		exhausted: make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

func (s *fakeStream) Read() ([]int16, error) {
	if s.idx < len(s.frames) {
		f := s.frames[s.idx]
		s.idx++
		return f, nil
	}
	s.exOnce.Do(func() { close(s.exhausted) })
	<-s.closed
	return nil, io.EOF
}

func (s *fakeStream) SampleRate() int { return s.rate }
func (s *fakeStream) Channels() int   { return s.channels }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeDevice struct {
	stream *fakeStream
	opens  int
}

func (d *fakeDevice) Open() (Stream, error) {
	d.opens++
	return d.stream, nil
}

func grantedGate() *Gate {
	return NewGate(SystemAuthorizer{})
}

func silenceFrames(n, size int) [][]int16 {
	frames := make([][]int16, n)
	for i := range frames {
		frames[i] = make([]int16, size)
	}
	return frames
}

func TestStartStopWritesWav(t *testing.T) {
	// Two seconds of silence at 16 kHz mono: 32 buffers of 1024 samples.
	stream := newFakeStream(silenceFrames(32, 1024), 16000, 1)
	dev := &fakeDevice{stream: stream}
	r := New(dev, grantedGate(), t.TempDir(), nil)

	path, err := r.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !strings.HasSuffix(path, ".wav") {
		t.Fatalf("expected .wav path, got %q", path)
	}
	if base := filepath.Base(path); !strings.HasPrefix(base, "rec_") {
		t.Fatalf("unexpected file name %q", base)
	}

	<-stream.exhausted
	done, err := r.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if done.Path != path {
		t.Fatalf("completion path = %q, want %q", done.Path, path)
	}
	if done.Compressed {
		t.Fatal("completion should not be marked compressed")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("recording file is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if dec.SampleRate != 16000 || dec.BitDepth != 16 || dec.NumChans != 1 {
		t.Fatalf("unexpected wav format: rate=%d depth=%d chans=%d", dec.SampleRate, dec.BitDepth, dec.NumChans)
	}
	if len(buf.Data) != 32*1024 {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), 32*1024)
	}
}

func TestStartIsIdempotentWhileRecording(t *testing.T) {
	stream := newFakeStream(silenceFrames(4, 256), 16000, 1)
	dev := &fakeDevice{stream: stream}
	dir := t.TempDir()
	r := New(dev, grantedGate(), dir, nil)

	first, err := r.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	second, err := r.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if first != second {
		t.Fatalf("paths differ: %q vs %q", first, second)
	}
	if dev.opens != 1 {
		t.Fatalf("device opened %d times, want 1", dev.opens)
	}

	<-stream.exhausted
	if _, err := r.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("found %d files, want 1", len(entries))
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	r := New(&fakeDevice{stream: newFakeStream(nil, 16000, 1)}, grantedGate(), t.TempDir(), nil)
	done, err := r.Stop()
	if err != nil {
		t.Fatalf("idle stop should not fail: %v", err)
	}
	if done.Path != "" {
		t.Fatalf("idle stop returned completion %+v", done)
	}
}

// nullSink creates the file but never writes, leaving it empty.
type nullSink struct{}

func (nullSink) write([]int16) error { return nil }
func (nullSink) close() error        { return nil }

func TestStopSurfacesEmptyRecording(t *testing.T) {
	stream := newFakeStream(silenceFrames(2, 64), 16000, 1)
	r := New(&fakeDevice{stream: stream}, grantedGate(), t.TempDir(), nil)
	r.newSink = func(path string, compressed bool, sampleRate, channels int) (sink, error) {
		if _, err := os.Create(path); err != nil {
			return nil, err
		}
		return nullSink{}, nil
	}

	if _, err := r.Start(context.Background(), false); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-stream.exhausted

	_, err := r.Stop()
	if !errors.Is(err, ErrEmptyRecording) {
		t.Fatalf("expected ErrEmptyRecording, got %v", err)
	}
}

// rawSink writes samples straight to the file, standing in for ffmpeg.
type rawSink struct{ file *os.File }

func (s *rawSink) write(frames []int16) error {
	b := make([]byte, len(frames)*2)
	for i, v := range frames {
		b[2*i] = byte(v)
		b[2*i+1] = byte(uint16(v) >> 8)
	}
	_, err := s.file.Write(b)
	return err
}

func (s *rawSink) close() error { return s.file.Close() }

func TestCompressedSessionUsesM4A(t *testing.T) {
	stream := newFakeStream(silenceFrames(4, 256), 44100, 2)
	r := New(&fakeDevice{stream: stream}, grantedGate(), t.TempDir(), nil)

	var gotCompressed bool
	var gotRate, gotChannels int
	r.newSink = func(path string, compressed bool, sampleRate, channels int) (sink, error) {
		gotCompressed = compressed
		gotRate, gotChannels = sampleRate, channels
		file, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return &rawSink{file: file}, nil
	}

	path, err := r.Start(context.Background(), true)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !strings.HasSuffix(path, ".m4a") {
		t.Fatalf("expected .m4a path, got %q", path)
	}

	<-stream.exhausted
	done, err := r.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !done.Compressed {
		t.Fatal("completion should be marked compressed")
	}
	if !gotCompressed || gotRate != 44100 || gotChannels != 2 {
		t.Fatalf("sink saw compressed=%v rate=%d channels=%d", gotCompressed, gotRate, gotChannels)
	}
}

func TestStartDeniedByGate(t *testing.T) {
	gate := NewGate(deniedAuthorizer{})
	r := New(&fakeDevice{stream: newFakeStream(nil, 16000, 1)}, gate, t.TempDir(), nil)

	_, err := r.Start(context.Background(), false)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if r.Recording() {
		t.Fatal("recorder should not be recording after denied start")
	}
}

func TestAbortRemovesFile(t *testing.T) {
	stream := newFakeStream(silenceFrames(4, 256), 16000, 1)
	dir := t.TempDir()
	r := New(&fakeDevice{stream: stream}, grantedGate(), dir, nil)

	path, err := r.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-stream.exhausted

	if err := r.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
	if r.Recording() {
		t.Fatal("recorder should be idle after abort")
	}
}
