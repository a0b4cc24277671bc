package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/petems/soundboard/internal/audio"
	"github.com/rs/zerolog"
)

// Speaker plays files on the system default output through beep's mixer.
// The mixer runs at a fixed rate and other rates are resampled.
type Speaker struct {
	rate beep.SampleRate
	log  zerolog.Logger

	once    sync.Once
	initErr error
}

// NewSpeaker returns a speaker; the device is opened on first use
func NewSpeaker(log zerolog.Logger) *Speaker {
	return &Speaker{
		rate: beep.SampleRate(audio.SampleRate),
		log:  log,
	}
}

func (s *Speaker) init() error {
	s.once.Do(func() {
		if err := speaker.Init(s.rate, s.rate.N(time.Second/20)); err != nil {
			s.initErr = fmt.Errorf("%w: %v", audio.ErrDeviceOpen, err)
		}
	})
	return s.initErr
}

// PlayFile blocks until path has played or ctx is done
func (s *Speaker) PlayFile(ctx context.Context, path string) error {
	if err := s.init(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", audio.ErrFileNotFound, path)
	} else if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	stream, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", audio.ErrInvalidFile, err)
	}
	defer stream.Close()

	var src beep.Streamer = stream
	if format.SampleRate != s.rate {
		src = beep.Resample(4, format.SampleRate, s.rate, stream)
	}

	done := make(chan struct{}, 1)
	ctrl := &beep.Ctrl{Streamer: beep.Seq(src, beep.Callback(func() {
		done <- struct{}{}
	}))}

	s.log.Debug().Str("file", path).Int("rate", int(format.SampleRate)).Msg("Playing on default speaker")
	speaker.Play(ctrl)

	select {
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	case <-done:
		return nil
	}
}
