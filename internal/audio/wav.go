package audio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NameLength is the length of generated file base names
const NameLength = 10

// RandomName returns a random alphanumeric base name plus Extension
func RandomName() string {
	b := make([]byte, NameLength)
	for i := range b {
		b[i] = nameAlphabet[rand.IntN(len(nameAlphabet))]
	}
	return string(b) + Extension
}

// writeWAV writes interleaved 16-bit chunks as a single PCM WAV file
func writeWAV(path string, chunks [][]int16, channels, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav: %w", err)
	}

	enc := wav.NewEncoder(file, sampleRate, BitDepth, channels, 1)
	format := &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}
	buf := &goaudio.IntBuffer{Format: format, SourceBitDepth: BitDepth}

	// The first Write emits the header, so an empty recording still gets one
	buf.Data = []int{}
	if err := enc.Write(buf); err != nil {
		file.Close()
		return fmt.Errorf("failed to write wav header: %w", err)
	}

	for _, chunk := range chunks {
		buf.Data = buf.Data[:0]
		for _, v := range chunk {
			buf.Data = append(buf.Data, int(v))
		}
		if err := enc.Write(buf); err != nil {
			file.Close()
			return fmt.Errorf("failed to write wav: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finalize wav: %w", err)
	}

	return file.Close()
}

// wavReader streams a PCM WAV file in fixed-size chunks of 16-bit samples
type wavReader struct {
	file     *os.File
	dec      *wav.Decoder
	buf      *goaudio.IntBuffer
	channels int
	rate     int
	depth    int
}

func openWAV(path string, framesPerChunk int) (*wavReader, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}

	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	if channels <= 0 || dec.SampleRate == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	switch depth {
	case 8, 16, 24, 32:
	default:
		file.Close()
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFile, depth)
	}

	return &wavReader{
		file: file,
		dec:  dec,
		buf: &goaudio.IntBuffer{
			Format: dec.Format(),
			Data:   make([]int, framesPerChunk*channels),
		},
		channels: channels,
		rate:     int(dec.SampleRate),
		depth:    depth,
	}, nil
}

// next fills out with the next chunk, zero-padding the tail. It returns the
// number of samples read; 0 means end of file.
func (r *wavReader) next(out []int16) (int, error) {
	r.buf.Data = r.buf.Data[:cap(r.buf.Data)]
	if len(r.buf.Data) > len(out) {
		r.buf.Data = r.buf.Data[:len(out)]
	}

	n, err := r.dec.PCMBuffer(r.buf)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read wav: %w", err)
	}

	for i := 0; i < n; i++ {
		out[i] = to16(r.buf.Data[i], r.depth)
	}
	clear(out[n:])

	return n, nil
}

func (r *wavReader) Close() error {
	return r.file.Close()
}

func to16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}
