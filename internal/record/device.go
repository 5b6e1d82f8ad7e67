package record

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Stream delivers captured PCM frames. Read blocks until the next buffer is
// available and returns a copy the caller owns.
type Stream interface {
	Read() ([]int16, error)
	SampleRate() int
	Channels() int
	Close() error
}

// Device opens microphone capture streams.
type Device interface {
	Open() (Stream, error)
}

const framesPerBuffer = 1024

// PortAudioDevice captures from the default input device at its native
// sample rate and channel count.
type PortAudioDevice struct{}

func (PortAudioDevice) Open() (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("no default input device: %w", err)
	}

	channels := info.MaxInputChannels
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		channels = 2
	}
	rate := int(info.DefaultSampleRate)
	if rate <= 0 {
		rate = 44100
	}

	in := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(rate), framesPerBuffer, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start stream failed: %w", err)
	}

	return &portAudioStream{stream: stream, in: in, rate: rate, channels: channels}, nil
}

type portAudioStream struct {
	stream   *portaudio.Stream
	in       []int16
	rate     int
	channels int
}

func (s *portAudioStream) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	out := make([]int16, len(s.in))
	copy(out, s.in)
	return out, nil
}

func (s *portAudioStream) SampleRate() int { return s.rate }

func (s *portAudioStream) Channels() int { return s.channels }

func (s *portAudioStream) Close() error {
	_ = s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
