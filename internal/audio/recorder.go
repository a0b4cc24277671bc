package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State of the recorder
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	default:
		return "idle"
	}
}

// Recording describes a finished capture
type Recording struct {
	Path     string
	Frames   int
	Duration time.Duration
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithFaultHandler sets a callback invoked from the capture worker when a
// read error ends the capture early.
func WithFaultHandler(fn func(error)) RecorderOption {
	return func(r *Recorder) {
		r.onFault = fn
	}
}

// WithNameFunc replaces the random file name generator.
func WithNameFunc(fn func() string) RecorderOption {
	return func(r *Recorder) {
		r.newName = fn
	}
}

// Recorder captures from an input device into memory and writes a WAV file
// when stopped. Idle -> Recording -> Idle.
type Recorder struct {
	backend Backend
	dir     string
	log     zerolog.Logger
	onFault func(error)
	newName func() string

	mu      sync.Mutex
	state   State
	session *session
}

// session is owned by one capture worker until Stop collects it
type session struct {
	device  string
	stream  Stream
	path    string
	buf     []int16
	chunks  [][]int16
	started time.Time
	stop    atomic.Bool
	done    chan struct{}
	err     error
}

// NewRecorder returns a recorder that writes files into dir
func NewRecorder(backend Backend, dir string, log zerolog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		backend: backend,
		dir:     dir,
		log:     log,
		newName: RandomName,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start opens dev and begins capturing on a background worker. The returned
// path is where Stop will write the file.
func (r *Recorder) Start(dev Device) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		return "", ErrRecording
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path, err := r.uniquePath()
	if err != nil {
		return "", err
	}

	params := StreamParams{
		Channels:        Channels,
		SampleRate:      SampleRate,
		FramesPerBuffer: FramesPerBuffer,
	}
	buf := make([]int16, FramesPerBuffer*Channels)

	stream, err := r.backend.OpenInput(dev, params, buf)
	if err != nil {
		return "", &DeviceError{Device: dev.Name, Op: "open input", Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return "", &DeviceError{Device: dev.Name, Op: "start input", Err: err}
	}

	s := &session{
		device:  dev.Name,
		stream:  stream,
		path:    path,
		buf:     buf,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	r.session = s
	r.state = StateRecording

	r.log.Info().Str("device", dev.Name).Str("file", path).Msg("Recording started")

	go r.capture(s)

	return path, nil
}

func (r *Recorder) uniquePath() (string, error) {
	for range 8 {
		path := filepath.Join(r.dir, r.newName())
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique file name in %s", r.dir)
}

// capture reads one buffer per iteration until the stop flag is set. The
// fault handler runs after done is closed so it may call Stop.
func (r *Recorder) capture(s *session) {
	s.err = r.readLoop(s)
	close(s.done)

	if s.err != nil {
		r.log.Error().Err(s.err).Str("device", s.device).Msg("Recording stopped early")
		if r.onFault != nil {
			r.onFault(s.err)
		}
	}
}

func (r *Recorder) readLoop(s *session) error {
	for !s.stop.Load() {
		if err := s.stream.Read(); err != nil {
			return &StreamReadError{Err: err}
		}

		chunk := make([]int16, len(s.buf))
		copy(chunk, s.buf)
		s.chunks = append(s.chunks, chunk)
	}
	return nil
}

// Stop ends the capture, closes the stream and writes the WAV file. If a read
// error ended the capture early, the audio captured up to that point is still
// written and the *StreamReadError is returned alongside the recording.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return Recording{}, ErrNotRecording
	}

	s := r.session
	s.stop.Store(true)
	<-s.done

	if err := s.stream.Stop(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to stop input stream")
	}
	if err := s.stream.Close(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to close input stream")
	}

	r.session = nil
	r.state = StateIdle

	if err := writeWAV(s.path, s.chunks, Channels, SampleRate); err != nil {
		os.Remove(s.path)
		return Recording{}, err
	}

	frames := len(s.chunks) * FramesPerBuffer
	rec := Recording{
		Path:     s.path,
		Frames:   frames,
		Duration: time.Duration(frames) * time.Second / SampleRate,
	}

	r.log.Info().
		Str("file", rec.Path).
		Dur("duration", rec.Duration).
		Dur("elapsed", time.Since(s.started)).
		Msg("Recording saved")

	if s.err != nil {
		return rec, s.err
	}
	return rec, nil
}
