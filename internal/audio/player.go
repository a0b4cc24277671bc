package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
)

// Player plays WAV files. Each Play call opens and owns its own file and
// device handles, so calls may run concurrently.
type Player struct {
	backend Backend
	speaker Speaker
	log     zerolog.Logger
}

// NewPlayer returns a player. speaker handles default-device playback; when
// nil the backend's default output device is streamed to directly.
func NewPlayer(backend Backend, speaker Speaker, log zerolog.Logger) *Player {
	return &Player{
		backend: backend,
		speaker: speaker,
		log:     log,
	}
}

// Play plays path to the end on dev, or on the default output when dev is nil.
// It blocks until playback finishes or ctx is done.
func (p *Player) Play(ctx context.Context, path string, dev *Device) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	if dev == nil {
		if p.speaker != nil {
			p.log.Debug().Str("file", path).Msg("Playing on default speaker")
			return p.speaker.PlayFile(ctx, path)
		}

		def, err := p.backend.DefaultOutput()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		dev = &def
	}

	return p.stream(ctx, path, *dev)
}

func (p *Player) stream(ctx context.Context, path string, dev Device) error {
	wr, err := openWAV(path, FramesPerBuffer)
	if err != nil {
		return err
	}
	defer wr.Close()

	out := make([]int16, FramesPerBuffer*wr.channels)
	stream, err := p.backend.OpenOutput(dev, StreamParams{
		Channels:        wr.channels,
		SampleRate:      float64(wr.rate),
		FramesPerBuffer: FramesPerBuffer,
	}, out)
	if err != nil {
		return &DeviceError{Device: dev.Name, Op: "open output", Err: err}
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return &DeviceError{Device: dev.Name, Op: "start output", Err: err}
	}
	defer stream.Stop()

	p.log.Debug().Str("file", path).Str("device", dev.Name).Msg("Playback started")

	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := wr.next(out)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}

		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write to %q: %w", dev.Name, err)
		}
		frames += n / wr.channels
	}

	p.log.Debug().Str("file", path).Int("frames", frames).Msg("Playback finished")
	return nil
}
