// Package device binds the audio package to the platform through PortAudio
// and the beep speaker.
package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/soundboard/internal/audio"
)

// PortAudio implements audio.Backend
type PortAudio struct {
	mu      sync.Mutex
	devices []*portaudio.DeviceInfo
}

// New initializes PortAudio. Close must be called to release it.
func New() (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudio{}, nil
}

// Devices lists every device the host reports. Index is the position in
// PortAudio's enumeration and only holds for this process.
func (p *PortAudio) Devices() ([]audio.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	p.mu.Lock()
	p.devices = infos
	p.mu.Unlock()

	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	result := make([]audio.Device, 0, len(infos))
	for i, d := range infos {
		result = append(result, toDevice(i, d, defIn, defOut))
	}
	return result, nil
}

func (p *PortAudio) DefaultInput() (audio.Device, error) {
	return p.defaultDevice(portaudio.DefaultInputDevice)
}

func (p *PortAudio) DefaultOutput() (audio.Device, error) {
	return p.defaultDevice(portaudio.DefaultOutputDevice)
}

func (p *PortAudio) defaultDevice(get func() (*portaudio.DeviceInfo, error)) (audio.Device, error) {
	info, err := get()
	if err != nil {
		return audio.Device{}, fmt.Errorf("%w: %v", audio.ErrNoDevice, err)
	}

	devs, err := p.Devices()
	if err != nil {
		return audio.Device{}, err
	}
	for _, d := range devs {
		if d.Name == info.Name {
			return d, nil
		}
	}
	return audio.Device{}, audio.ErrNoDevice
}

func (p *PortAudio) OpenInput(dev audio.Device, params audio.StreamParams, buf []int16) (audio.Stream, error) {
	info, err := p.lookup(dev)
	if err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: params.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      params.SampleRate,
		FramesPerBuffer: params.FramesPerBuffer,
	}, buf)
	if err != nil {
		return nil, err
	}
	return &paStream{Stream: stream}, nil
}

func (p *PortAudio) OpenOutput(dev audio.Device, params audio.StreamParams, buf []int16) (audio.Stream, error) {
	info, err := p.lookup(dev)
	if err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: params.Channels,
			Latency:  info.DefaultHighOutputLatency,
		},
		SampleRate:      params.SampleRate,
		FramesPerBuffer: params.FramesPerBuffer,
	}, buf)
	if err != nil {
		return nil, err
	}
	return &paStream{Stream: stream}, nil
}

// lookup maps a device back to PortAudio, by index when the name still
// matches and by name otherwise.
func (p *PortAudio) lookup(dev audio.Device) (*portaudio.DeviceInfo, error) {
	p.mu.Lock()
	infos := p.devices
	p.mu.Unlock()

	if infos == nil {
		var err error
		if infos, err = portaudio.Devices(); err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
	}

	if dev.Index >= 0 && dev.Index < len(infos) && infos[dev.Index].Name == dev.Name {
		return infos[dev.Index], nil
	}
	for _, info := range infos {
		if info.Name == dev.Name {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", audio.ErrNoDevice, dev.Name)
}

func (p *PortAudio) Close() error {
	return portaudio.Terminate()
}

func toDevice(index int, d, defIn, defOut *portaudio.DeviceInfo) audio.Device {
	return audio.Device{
		Index:             index,
		Name:              d.Name,
		MaxInputChannels:  d.MaxInputChannels,
		MaxOutputChannels: d.MaxOutputChannels,
		DefaultSampleRate: d.DefaultSampleRate,
		IsDefaultInput:    defIn != nil && d == defIn,
		IsDefaultOutput:   defOut != nil && d == defOut,
	}
}

// paStream drops overflow and underflow reports, which only mean a buffer
// was late and are not fatal for blocking I/O.
type paStream struct {
	*portaudio.Stream
}

func (s *paStream) Read() error {
	return ignoreXrun(s.Stream.Read())
}

func (s *paStream) Write() error {
	return ignoreXrun(s.Stream.Write())
}

func ignoreXrun(err error) error {
	if errors.Is(err, portaudio.InputOverflowed) || errors.Is(err, portaudio.OutputUnderflowed) {
		return nil
	}
	return err
}
