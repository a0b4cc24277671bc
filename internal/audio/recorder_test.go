package audio

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

func bufferPeriod() time.Duration {
	return time.Duration(FramesPerBuffer) * time.Second / SampleRate
}

func TestRecorderDurationTracksWallClock(t *testing.T) {
	backend := newFakeBackend()
	rec := NewRecorder(backend, t.TempDir(), zerolog.Nop())

	begin := time.Now()
	if _, err := rec.Start(backend.devices[0]); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	wall := time.Since(begin)

	got, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	diff := got.Duration - wall
	if diff < 0 {
		diff = -diff
	}
	// One period for the read in flight when stop was requested, one for
	// scheduling jitter
	if limit := 2 * bufferPeriod(); diff > limit {
		t.Errorf("recorded %v for %v of wall time, off by %v (limit %v)", got.Duration, wall, diff, limit)
	}
	if got.Frames%FramesPerBuffer != 0 {
		t.Errorf("expected whole buffers, got %d frames", got.Frames)
	}
}

func TestRecorderWritesWAV(t *testing.T) {
	backend := newFakeBackend()
	dir := t.TempDir()
	rec := NewRecorder(backend, dir, zerolog.Nop(), WithNameFunc(func() string { return "fixedname1.wav" }))

	path, err := rec.Start(backend.devices[0])
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if path != filepath.Join(dir, "fixedname1.wav") {
		t.Errorf("unexpected path %s", path)
	}
	if rec.State() != StateRecording {
		t.Errorf("expected recording state, got %s", rec.State())
	}

	time.Sleep(5 * bufferPeriod())

	got, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if rec.State() != StateIdle {
		t.Errorf("expected idle state after stop, got %s", rec.State())
	}
	if got.Path != path {
		t.Errorf("Stop returned path %s, Start returned %s", got.Path, path)
	}

	stream := backend.lastStream()
	if !stream.stopped || !stream.closed {
		t.Error("input stream was not stopped and closed")
	}
	if stream.params.Channels != 2 || stream.params.SampleRate != 44100 || stream.params.FramesPerBuffer != 1024 {
		t.Errorf("unexpected stream params %+v", stream.params)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("recording not written: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("recording is not a valid wav file")
	}
	if dec.NumChans != 2 || dec.SampleRate != 44100 || dec.BitDepth != 16 {
		t.Errorf("unexpected format: %d ch, %d Hz, %d bit", dec.NumChans, dec.SampleRate, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("failed to read samples: %v", err)
	}
	if frames := len(buf.Data) / 2; frames != got.Frames {
		t.Errorf("file has %d frames, recording reports %d", frames, got.Frames)
	}
	if len(buf.Data) > 0 && buf.Data[0] != 1 {
		t.Errorf("expected first sample from first buffer, got %d", buf.Data[0])
	}
}

func TestRecorderStateErrors(t *testing.T) {
	backend := newFakeBackend()
	rec := NewRecorder(backend, t.TempDir(), zerolog.Nop())

	if _, err := rec.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("expected ErrNotRecording, got %v", err)
	}

	if _, err := rec.Start(backend.devices[0]); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := rec.Start(backend.devices[0]); !errors.Is(err, ErrRecording) {
		t.Errorf("expected ErrRecording, got %v", err)
	}
	if _, err := rec.Stop(); err != nil {
		t.Errorf("Stop returned error: %v", err)
	}
}

func TestRecorderOpenFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.openErr = errors.New("device busy")
	dir := t.TempDir()
	rec := NewRecorder(backend, dir, zerolog.Nop())

	_, err := rec.Start(backend.devices[0])
	if !errors.Is(err, ErrDeviceOpen) {
		t.Fatalf("expected ErrDeviceOpen, got %v", err)
	}

	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Device != "Microphone" {
		t.Errorf("expected DeviceError for Microphone, got %v", err)
	}
	if rec.State() != StateIdle {
		t.Errorf("expected idle after failed start, got %s", rec.State())
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 0 {
		t.Errorf("failed start left %d files behind", len(files))
	}
}

func TestRecorderReadErrorStopsEarly(t *testing.T) {
	backend := newFakeBackend()
	backend.failAt = 3

	var (
		mu     sync.Mutex
		faults []error
	)
	faulted := make(chan struct{})
	rec := NewRecorder(backend, t.TempDir(), zerolog.Nop(), WithFaultHandler(func(err error) {
		mu.Lock()
		faults = append(faults, err)
		mu.Unlock()
		close(faulted)
	}))

	if _, err := rec.Start(backend.devices[0]); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case <-faulted:
	case <-time.After(2 * time.Second):
		t.Fatal("fault handler was not called")
	}

	got, err := rec.Stop()
	if !errors.Is(err, ErrStreamRead) {
		t.Fatalf("expected ErrStreamRead from Stop, got %v", err)
	}
	if got.Frames != 2*FramesPerBuffer {
		t.Errorf("expected 2 buffers before the failure, got %d frames", got.Frames)
	}
	if _, statErr := os.Stat(got.Path); statErr != nil {
		t.Errorf("partial recording not written: %v", statErr)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(faults) != 1 || !errors.Is(faults[0], ErrStreamRead) {
		t.Errorf("unexpected faults %v", faults)
	}
}

func TestRecorderFaultHandlerMayStop(t *testing.T) {
	backend := newFakeBackend()
	backend.failAt = 1

	var rec *Recorder
	stopped := make(chan error, 1)
	rec = NewRecorder(backend, t.TempDir(), zerolog.Nop(), WithFaultHandler(func(error) {
		_, err := rec.Stop()
		stopped <- err
	}))

	if _, err := rec.Start(backend.devices[0]); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case err := <-stopped:
		if !errors.Is(err, ErrStreamRead) {
			t.Errorf("expected ErrStreamRead, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from fault handler deadlocked")
	}
}

func TestRandomName(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Za-z0-9]{10}\.wav$`)
	seen := map[string]bool{}
	for range 100 {
		name := RandomName()
		if !pattern.MatchString(name) {
			t.Fatalf("unexpected name %q", name)
		}
		seen[name] = true
	}
	if len(seen) < 99 {
		t.Errorf("expected unique names, got %d distinct of 100", len(seen))
	}
}
