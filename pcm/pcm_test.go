package pcm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/hackrftx/wav"
)

func TestFromRaw8Bit(t *testing.T) {
	src, err := FromRaw([]byte{128, 255, 0}, 8000, 8, 1)
	require.NoError(t, err)

	samples := src.Samples()
	require.Len(t, samples, 3)
	assert.InDelta(t, 0, samples[0], 1e-6)
	assert.InDelta(t, float64(127<<8)/fullScale, samples[1], 1e-6)
	assert.InDelta(t, float64(-128<<8)/fullScale, samples[2], 1e-6)
	assert.Equal(t, uint32(8000), src.SampleRate())
}

func TestFromRaw16Bit(t *testing.T) {
	buf := make([]byte, 6)
	var v16 int16 = 32767
	binary.LittleEndian.PutUint16(buf[0:], uint16(v16))
	v16 = -32768
	binary.LittleEndian.PutUint16(buf[2:], uint16(v16))
	binary.LittleEndian.PutUint16(buf[4:], 0)

	src, err := FromRaw(buf, 44100, 16, 1)
	require.NoError(t, err)

	samples := src.Samples()
	assert.InDelta(t, 32767.0/fullScale, samples[0], 1e-6)
	assert.InDelta(t, -32768.0/fullScale, samples[1], 1e-6)
	assert.InDelta(t, 0, samples[2], 1e-6)
}

func TestFromRaw24Bit(t *testing.T) {
	// 0x7FFFFF is full-scale positive, 0x800000 full-scale negative.
	buf := []byte{0xFF, 0xFF, 0x7F, 0x00, 0x00, 0x80}

	src, err := FromRaw(buf, 44100, 24, 1)
	require.NoError(t, err)

	samples := src.Samples()
	assert.InDelta(t, float64(8388607/256)/fullScale, samples[0], 1e-6)
	assert.InDelta(t, float64(-8388608/256)/fullScale, samples[1], 1e-6)
}

func TestFromRaw32Bit(t *testing.T) {
	buf := make([]byte, 8)
	var v32 int32 = math.MaxInt32
	binary.LittleEndian.PutUint32(buf[0:], uint32(v32))
	v32 = math.MinInt32
	binary.LittleEndian.PutUint32(buf[4:], uint32(v32))

	src, err := FromRaw(buf, 44100, 32, 1)
	require.NoError(t, err)

	samples := src.Samples()
	assert.InDelta(t, float64(math.MaxInt32/65538)/fullScale, samples[0], 1e-6)
	assert.InDelta(t, float64(math.MinInt32/65538)/fullScale, samples[1], 1e-6)
}

func TestStereoMean(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:], uint16(int16(10000)))
	binary.LittleEndian.PutUint16(buf[2:], uint16(int16(20000)))

	src, err := FromRaw(buf, 44100, 16, 2)
	require.NoError(t, err)

	samples := src.Samples()
	require.Len(t, samples, 1)
	assert.InDelta(t, 15000.0/fullScale, samples[0], 1e-6)
}

func TestFromRawErrors(t *testing.T) {
	_, err := FromRaw(make([]byte, 4), 44100, 16, 3)
	assert.Error(t, err, "channel count")

	_, err = FromRaw(make([]byte, 4), 44100, 12, 1)
	assert.Error(t, err, "bit depth")

	_, err = FromRaw(make([]byte, 5), 44100, 16, 1)
	assert.Error(t, err, "misaligned buffer")
}

func TestFromWAV(t *testing.T) {
	buf := wav.EncodeMono16([]int16{0, 16384, -16384}, 22050)

	src, err := FromWAV(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(22050), src.SampleRate())

	samples := src.Samples()
	require.Len(t, samples, 3)
	assert.InDelta(t, 16384.0/fullScale, samples[1], 1e-6)
	assert.InDelta(t, -16384.0/fullScale, samples[2], 1e-6)
}

func TestFromWAVFloat(t *testing.T) {
	hdr := wav.EncodeMono16(nil, 48000)[:wav.HeaderSize]
	binary.LittleEndian.PutUint16(hdr[20:], wav.FormatFloat)
	binary.LittleEndian.PutUint16(hdr[34:], 32)

	buf := append([]byte{}, hdr...)
	for _, f := range []float32{0.25, -2.0} {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}

	src, err := FromWAV(buf)
	require.NoError(t, err)

	samples := src.Samples()
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.25, samples[0], 1e-6)
	assert.InDelta(t, -1.0, samples[1], 1e-6, "out of range floats clamp")
}

func TestFromWAVRejectsGarbage(t *testing.T) {
	_, err := FromWAV([]byte("not a wave file at all, far too short"))
	assert.Error(t, err)
}
