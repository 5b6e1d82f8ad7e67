package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// sink consumes PCM frames and writes the on-disk recording.
type sink interface {
	write(frames []int16) error
	close() error
}

func newSink(path string, compressed bool, sampleRate, channels int) (sink, error) {
	if compressed {
		return newM4ASink(path, sampleRate, channels)
	}
	return newWAVSink(path, sampleRate, channels)
}

type wavSink struct {
	file   *os.File
	enc    *wav.Encoder
	format *audio.Format
	ints   []int
}

func newWAVSink(path string, sampleRate, channels int) (sink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav failed: %w", err)
	}
	return &wavSink{
		file:   file,
		enc:    wav.NewEncoder(file, sampleRate, 16, channels, 1),
		format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
	}, nil
}

func (s *wavSink) write(frames []int16) error {
	if cap(s.ints) < len(frames) {
		s.ints = make([]int, len(frames))
	}
	ints := s.ints[:len(frames)]
	for i, v := range frames {
		ints[i] = int(v)
	}
	buf := &audio.IntBuffer{Format: s.format, Data: ints, SourceBitDepth: 16}
	if err := s.enc.Write(buf); err != nil {
		return fmt.Errorf("wav write failed: %w", err)
	}
	return nil
}

func (s *wavSink) close() error {
	encErr := s.enc.Close()
	fileErr := s.file.Close()
	if encErr != nil {
		return fmt.Errorf("wav close failed: %w", encErr)
	}
	return fileErr
}

// m4aSink pipes raw PCM into ffmpeg, which writes the AAC/m4a container.
type m4aSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
}

func newM4ASink(path string, sampleRate, channels int) (sink, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-i", "-",
		"-c:a", "aac",
		path,
	}
	cmd := exec.Command("ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin pipe failed: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return &m4aSink{cmd: cmd, stdin: stdin, stderr: &stderr}, nil
}

func (s *m4aSink) write(frames []int16) error {
	if err := binary.Write(s.stdin, binary.LittleEndian, frames); err != nil {
		return fmt.Errorf("ffmpeg write failed: %w", err)
	}
	return nil
}

func (s *m4aSink) close() error {
	_ = s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		detail := bytes.TrimSpace(s.stderr.Bytes())
		if len(detail) > 0 {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, detail)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}
