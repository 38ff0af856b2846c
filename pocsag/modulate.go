package pocsag

import (
	"github.com/bemasher/hackrftx/bits"
)

// Modulate renders a framed byte stream as two-level PCM at the encoder's
// sample rate: each bit becomes SampleRate/bps samples of ±Amplitude, with
// half a second of silence on either side. Bits leave MSB-first on the
// wire, so each preamble byte and each little-endian codeword is read back
// through a bit reversal before emission.
func (e *Encoder) Modulate(framed []byte, bps BPS) []int16 {
	samplesPerBit := int(e.SampleRate) / int(bps)
	silence := int(e.SampleRate) / 2

	body := PreambleBytes*8 + (len(framed)-PreambleBytes)/4*32
	out := make([]int16, 0, 2*silence+body*samplesPerBit)

	out = append(out, make([]int16, silence)...)

	for _, b := range framed[:PreambleBytes] {
		rev := bits.Reverse(uint32(b), 8)
		for j := uint(0); j < 8; j++ {
			out = e.appendBit(out, rev>>j&1, samplesPerBit)
		}
	}

	for idx := PreambleBytes; idx+4 <= len(framed); idx += 4 {
		rev := bits.Reverse(bits.Uint32(framed[idx:]), 32)
		for j := uint(0); j < 32; j++ {
			out = e.appendBit(out, rev>>j&1, samplesPerBit)
		}
	}

	return append(out, make([]int16, silence)...)
}

func (e *Encoder) appendBit(out []int16, bit uint32, samplesPerBit int) []int16 {
	sample := -e.Amplitude
	if bit == 1 {
		sample = e.Amplitude
	}
	for i := 0; i < samplesPerBit; i++ {
		out = append(out, sample)
	}
	return out
}
