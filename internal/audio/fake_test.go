package audio

import (
	"errors"
	"sync"
	"time"
)

// fakeStream emulates a blocking device: the n-th Read returns at
// start + n buffer periods, filling the buffer with a counter pattern.
type fakeStream struct {
	buf    []int16
	params StreamParams

	mu       sync.Mutex
	started  time.Time
	reads    int
	writes   int
	written  []int16
	failAt   int // Read number that fails, 0 = never
	stopped  bool
	closed   bool
	startErr error
}

func (s *fakeStream) period() time.Duration {
	return time.Duration(s.params.FramesPerBuffer) * time.Second / time.Duration(s.params.SampleRate)
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = time.Now()
	return nil
}

func (s *fakeStream) Read() error {
	s.mu.Lock()
	s.reads++
	n := s.reads
	deadline := s.started.Add(time.Duration(n) * s.period())
	fail := s.failAt != 0 && n >= s.failAt
	s.mu.Unlock()

	time.Sleep(time.Until(deadline))

	if fail {
		return errors.New("device unplugged")
	}
	for i := range s.buf {
		s.buf[i] = int16(n)
	}
	return nil
}

func (s *fakeStream) Write() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.written = append(s.written, s.buf...)
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeBackend struct {
	devices []Device
	openErr error
	failAt  int

	mu      sync.Mutex
	streams []*fakeStream
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		devices: []Device{
			{Index: 0, Name: "Microphone", MaxInputChannels: 2, DefaultSampleRate: 44100, IsDefaultInput: true},
			{Index: 1, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100, IsDefaultOutput: true},
			{Index: 2, Name: "Virtual Cable", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 48000},
		},
	}
}

func (b *fakeBackend) Devices() ([]Device, error) {
	return b.devices, nil
}

func (b *fakeBackend) DefaultInput() (Device, error) {
	for _, d := range b.devices {
		if d.IsDefaultInput {
			return d, nil
		}
	}
	return Device{}, ErrNoDevice
}

func (b *fakeBackend) DefaultOutput() (Device, error) {
	for _, d := range b.devices {
		if d.IsDefaultOutput {
			return d, nil
		}
	}
	return Device{}, ErrNoDevice
}

func (b *fakeBackend) open(params StreamParams, buf []int16) (Stream, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeStream{buf: buf, params: params, failAt: b.failAt}
	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) OpenInput(dev Device, params StreamParams, buf []int16) (Stream, error) {
	return b.open(params, buf)
}

func (b *fakeBackend) OpenOutput(dev Device, params StreamParams, buf []int16) (Stream, error) {
	return b.open(params, buf)
}

func (b *fakeBackend) lastStream() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}
