// Package wav implements the fixed-layout RIFF/WAVE container used by the
// transmitter: a 44-byte header at offset 0 with sample data immediately
// after. Only the linear PCM and IEEE float subformats are accepted; bit
// depth and channel count are not checked here.
package wav

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Subformat tags from the fmt chunk.
const (
	FormatPCM   = 1
	FormatFloat = 3
)

// HeaderSize is the canonical header length. Sample data starts here.
const HeaderSize = 44

// Header describes the sample stream following the container header.
type Header struct {
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// Decode validates the container header of buf and returns the stream
// description along with the raw sample bytes.
func Decode(buf []byte) (hdr Header, data []byte, err error) {
	if len(buf) < HeaderSize {
		return hdr, nil, errors.New("wav: buffer truncated")
	}
	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return hdr, nil, errors.New("wav: not a RIFF/WAVE buffer")
	}

	hdr.Format = binary.LittleEndian.Uint16(buf[20:])
	hdr.Channels = binary.LittleEndian.Uint16(buf[22:])
	hdr.SampleRate = binary.LittleEndian.Uint32(buf[24:])
	hdr.BitsPerSample = binary.LittleEndian.Uint16(buf[34:])

	if hdr.Format != FormatPCM && hdr.Format != FormatFloat {
		return hdr, nil, errors.Errorf("wav: unsupported subformat %d, only PCM and float are accepted", hdr.Format)
	}

	return hdr, buf[HeaderSize:], nil
}

// EncodeMono16 wraps signed 16-bit mono samples at the given rate in a
// canonical 44-byte header and returns the complete byte stream.
func EncodeMono16(samples []int16, sampleRate uint32) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 0, HeaderSize+dataLen)

	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataLen))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, FormatPCM)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate*2) // byte rate
	buf = binary.LittleEndian.AppendUint16(buf, 2)            // block align
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataLen))

	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}

	return buf
}
