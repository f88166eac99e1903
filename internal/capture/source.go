package capture

import (
	"context"

	"github.com/gordonklaus/portaudio"
)

// framesPerRead is the PortAudio buffer size: 1024 frames at 16 kHz is
// 64 ms per read, comfortably under the level sampler's 50 ms tick budget
// for a fresh power value every couple of ticks.
const framesPerRead = 1024

// Source supplies raw mono PCM from an input device. Read blocks until one
// buffer of samples is available; the returned slice is only valid until
// the next Read.
type Source interface {
	Start() error
	Read() ([]int16, error)
	Stop() error
	Close() error
}

// SourceFactory opens a Source capturing mono audio at the given rate. The
// engine takes a factory rather than a Source so each recording session gets
// a fresh, exclusively owned device handle.
type SourceFactory func(sampleRate int) (Source, error)

// portaudioSource wraps a default-device PortAudio input stream.
type portaudioSource struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenInputDevice opens the platform default input device at sampleRate,
// mono. It is the production SourceFactory.
func OpenInputDevice(sampleRate int) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	buf := make([]int16, framesPerRead)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	return &portaudioSource{stream: stream, buf: buf}, nil
}

func (s *portaudioSource) Start() error {
	return s.stream.Start()
}

func (s *portaudioSource) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	return s.buf, nil
}

func (s *portaudioSource) Stop() error {
	return s.stream.Stop()
}

func (s *portaudioSource) Close() error {
	err := s.stream.Close()
	_ = portaudio.Terminate()
	return err
}

// RequestPermission attempts to open and immediately release the input
// device, which triggers the platform microphone prompt on first use. It
// blocks until the prompt resolves or ctx is done; sampling goroutines are
// never involved. Returns whether capture is permitted.
func (e *Engine) RequestPermission(ctx context.Context) bool {
	result := make(chan bool, 1)
	go func() {
		src, err := e.openSource(e.cfg.SampleRate)
		if err != nil {
			result <- false
			return
		}
		_ = src.Close()
		result <- true
	}()

	select {
	case granted := <-result:
		return granted
	case <-ctx.Done():
		return false
	}
}
