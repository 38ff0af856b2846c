// Package pcm normalises arbitrary PCM audio into mono float samples in
// [-1, +1] for the streaming modulator.
package pcm

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/bemasher/hackrftx/wav"
)

// All integer samples are brought to 16-bit dynamic range and divided by
// this, which puts them within about [-0.5, +0.5].
const fullScale = 65530

// A Source holds a normalised mono sample stream and its rate.
type Source struct {
	sampleRate uint32
	samples    []float32
}

// FromFile reads a RIFF/WAVE file and normalises its contents.
func FromFile(path string) (*Source, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: read wav file")
	}
	return FromWAV(buf)
}

// FromWAV normalises a complete RIFF/WAVE byte buffer.
func FromWAV(buf []byte) (*Source, error) {
	hdr, data, err := wav.Decode(buf)
	if err != nil {
		return nil, err
	}

	if hdr.Format == wav.FormatFloat {
		if hdr.BitsPerSample != 32 {
			return nil, errors.Errorf("pcm: unsupported float depth %d", hdr.BitsPerSample)
		}
		return fromFloat32(data, hdr.SampleRate, hdr.Channels)
	}

	return FromRaw(data, hdr.SampleRate, hdr.BitsPerSample, hdr.Channels)
}

// FromRaw normalises headerless linear PCM samples with the stated rate,
// bit depth and channel count.
func FromRaw(buf []byte, sampleRate uint32, bitsPerSample, channels uint16) (*Source, error) {
	if channels != 1 && channels != 2 {
		return nil, errors.Errorf("pcm: unsupported channel count %d, only mono and stereo are accepted", channels)
	}
	if bitsPerSample == 0 || bitsPerSample > 32 || bitsPerSample%8 != 0 {
		return nil, errors.Errorf("pcm: unsupported bit depth %d", bitsPerSample)
	}

	width := int(bitsPerSample / 8)
	if len(buf)%(width*int(channels)) != 0 {
		return nil, errors.Errorf("pcm: buffer length %d is not a multiple of the %d-byte frame", len(buf), width*int(channels))
	}

	src := &Source{
		sampleRate: sampleRate,
		samples:    make([]float32, len(buf)/(width*int(channels))),
	}

	for idx := range src.samples {
		off := idx * width * int(channels)
		s := normalize(buf[off:off+width], bitsPerSample)
		if channels == 2 {
			s = (s + normalize(buf[off+width:off+2*width], bitsPerSample)) / 2
		}
		src.samples[idx] = s
	}

	return src, nil
}

// SampleRate returns the stream's rate in Hz.
func (src *Source) SampleRate() uint32 {
	return src.sampleRate
}

// Samples returns the normalised mono sample stream.
func (src *Source) Samples() []float32 {
	return src.samples
}

// normalize converts one little-endian sample to float via a 16-bit
// intermediate. 8-bit audio is unsigned with a 128 offset, 24-bit is sign
// extended from bit 23, and 32-bit is rescaled down to 16-bit range.
func normalize(b []byte, bitsPerSample uint16) float32 {
	var s16 int32
	switch bitsPerSample {
	case 8:
		s16 = (int32(b[0]) - 128) << 8
	case 16:
		s16 = int32(int16(binary.LittleEndian.Uint16(b)))
	case 24:
		s24 := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if s24&0x800000 != 0 {
			s24 |= ^int32(0xFFFFFF)
		}
		s16 = s24 / (8388607 / 32767)
	case 32:
		s16 = int32(binary.LittleEndian.Uint32(b)) / (2147483647 / 32767)
	}
	return float32(s16) / fullScale
}

func fromFloat32(data []byte, sampleRate uint32, channels uint16) (*Source, error) {
	if channels != 1 && channels != 2 {
		return nil, errors.Errorf("pcm: unsupported channel count %d, only mono and stereo are accepted", channels)
	}

	frame := 4 * int(channels)
	if len(data)%frame != 0 {
		return nil, errors.Errorf("pcm: buffer length %d is not a multiple of the %d-byte frame", len(data), frame)
	}

	src := &Source{
		sampleRate: sampleRate,
		samples:    make([]float32, len(data)/frame),
	}

	for idx := range src.samples {
		off := idx * frame
		s := math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		if channels == 2 {
			s = (s + math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:]))) / 2
		}
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		src.samples[idx] = s
	}

	return src, nil
}
