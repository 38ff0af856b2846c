package wav

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMono16(t *testing.T) {
	samples := []int16{0, 5000, -5000, 32767, -32768}
	buf := EncodeMono16(samples, 44100)

	require.Len(t, buf, HeaderSize+len(samples)*2)
	assert.Equal(t, "RIFF", string(buf[0:4]))
	assert.Equal(t, "WAVE", string(buf[8:12]))
	assert.Equal(t, uint16(FormatPCM), binary.LittleEndian.Uint16(buf[20:]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(buf[22:]))
	assert.Equal(t, uint32(44100), binary.LittleEndian.Uint32(buf[24:]))
	assert.Equal(t, uint32(88200), binary.LittleEndian.Uint32(buf[28:]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(buf[34:]))
	assert.Equal(t, uint32(len(samples)*2), binary.LittleEndian.Uint32(buf[40:]))
	assert.Equal(t, int16(5000), int16(binary.LittleEndian.Uint16(buf[46:])))
}

func TestDecodeRoundTrip(t *testing.T) {
	buf := EncodeMono16([]int16{1, 2, 3}, 22050)

	hdr, data, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(FormatPCM), hdr.Format)
	assert.Equal(t, uint16(1), hdr.Channels)
	assert.Equal(t, uint32(22050), hdr.SampleRate)
	assert.Equal(t, uint16(16), hdr.BitsPerSample)
	assert.Len(t, data, 6)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode(make([]byte, 10))
	assert.Error(t, err, "truncated buffer")

	bad := EncodeMono16([]int16{0}, 44100)
	bad[0] = 'X'
	_, _, err = Decode(bad)
	assert.Error(t, err, "bad magic")

	adpcm := EncodeMono16([]int16{0}, 44100)
	binary.LittleEndian.PutUint16(adpcm[20:], 2)
	_, _, err = Decode(adpcm)
	assert.Error(t, err, "unsupported subformat")
}
