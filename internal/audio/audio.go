package audio

import "context"

// Capture format for recordings
const (
	SampleRate      = 44100
	Channels        = 2
	BitDepth        = 16
	FramesPerBuffer = 1024
)

// Extension of recorded files
const Extension = ".wav"

// Device describes an audio device as reported by the platform layer
type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// StreamParams describes an interleaved 16-bit stream
type StreamParams struct {
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
}

// Stream is a blocking audio stream bound to the buffer it was opened with.
// Read fills the buffer from the device, Write sends it to the device.
type Stream interface {
	Start() error
	Read() error
	Write() error
	Stop() error
	Close() error
}

// Backend opens streams on platform devices
type Backend interface {
	Devices() ([]Device, error)
	DefaultInput() (Device, error)
	DefaultOutput() (Device, error)
	OpenInput(dev Device, params StreamParams, buf []int16) (Stream, error)
	OpenOutput(dev Device, params StreamParams, buf []int16) (Stream, error)
}

// Speaker plays a file on the platform default output
type Speaker interface {
	PlayFile(ctx context.Context, path string) error
}

// Inputs returns the devices that can capture
func Inputs(devices []Device) []Device {
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, d)
		}
	}
	return result
}

// Outputs returns the devices that can play
func Outputs(devices []Device) []Device {
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			result = append(result, d)
		}
	}
	return result
}

// Resolve finds a device by name, falling back to index when no device has
// that name. Indices are not stable across restarts, so the name wins.
func Resolve(devices []Device, name string, index int) (Device, bool) {
	if name != "" {
		for _, d := range devices {
			if d.Name == name {
				return d, true
			}
		}
	}
	if index >= 0 {
		for _, d := range devices {
			if d.Index == index {
				return d, true
			}
		}
	}
	return Device{}, false
}
