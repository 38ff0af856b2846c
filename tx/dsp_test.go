package tx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newDSPTransmitter(subChunk int) *Transmitter {
	return &Transmitter{
		localGain:       1,
		subChunkSamples: subChunk,
		fmDeviationHz:   75000,
		interp:          make([]float32, BufLen),
		iq:              make([]float32, BufLen*BytesPerSample),
	}
}

func constChunk(v float32, n int) []float32 {
	chunk := make([]float32, n)
	for idx := range chunk {
		chunk[idx] = v
	}
	return chunk
}

func TestInterpolateConstant(t *testing.T) {
	tr := newDSPTransmitter(4096)
	tr.current = constChunk(0.5, 4096)
	tr.sampleCount = 4096
	tr.last = [4]float32{0.5, 0.5, 0.5, 0.5}

	tr.interpolate()

	for idx, v := range tr.interp {
		require.InDelta(t, 0.5, v, 1e-6, "sample %d", idx)
	}
}

func TestInterpolateSecondSubChunk(t *testing.T) {
	tr := newDSPTransmitter(4096)
	tr.current = constChunk(0.5, 8192)
	tr.sampleCount = 4096

	// First tick blends up from the zeroed tail; its boundary sample must
	// still equal the input boundary sample.
	tr.interpolate()
	assert.InDelta(t, 0.5, tr.interp[BufLen-1], 1e-6)
	assert.Equal(t, [4]float32{0.5, 0.5, 0.5, 0.5}, tr.last)

	// Second tick is fully inside the constant stream.
	tr.subOffset = 4096
	tr.interpolate()
	for idx, v := range tr.interp {
		require.InDelta(t, 0.5, v, 1e-6, "sample %d", idx)
	}
}

func TestInterpolateShortSubChunk(t *testing.T) {
	tr := newDSPTransmitter(2048)
	tr.current = []float32{0.25, -0.25}
	tr.sampleCount = 2
	tr.last = [4]float32{0.1, 0.2, 0.3, 0.4}

	tr.interpolate()

	assert.InDelta(t, -0.25, tr.interp[BufLen-1], 1e-6)
	assert.Equal(t, [4]float32{0.3, 0.4, 0.25, -0.25}, tr.last)
}

func TestInterpolateProperties(t *testing.T) {
	tr := newDSPTransmitter(4096)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(4, 4096).Draw(rt, "n")
		in := rapid.SliceOfN(rapid.Float32Range(-1, 1), n, n).Draw(rt, "in")
		tail := rapid.Float32Range(-1, 1).Draw(rt, "tail")

		tr.current = in
		tr.subOffset = 0
		tr.sampleCount = n
		tr.last = [4]float32{tail, tail, tail, tail}

		tr.interpolate()

		if tr.interp[BufLen-1] != in[n-1] {
			rt.Fatalf("boundary sample: expected %v got %v", in[n-1], tr.interp[BufLen-1])
		}

		lo, hi := tail, tail
		for _, v := range in {
			lo = float32(math.Min(float64(lo), float64(v)))
			hi = float32(math.Max(float64(hi), float64(v)))
		}
		for idx, v := range tr.interp {
			if v < lo-1e-5 || v > hi+1e-5 {
				rt.Fatalf("sample %d (%v) outside input envelope [%v, %v]", idx, v, lo, hi)
			}
		}
	})
}

func TestModulateAM(t *testing.T) {
	tr := newDSPTransmitter(2048)
	tr.am = true
	tr.localGain = 2 // drives the input into the clip
	for idx := range tr.interp {
		tr.interp[idx] = 0.75
	}

	tr.modulate()

	for idx := 0; idx < BufLen; idx++ {
		require.InDelta(t, 1.0, tr.iq[idx*BytesPerSample], 1e-6)
		require.InDelta(t, 0.0, tr.iq[idx*BytesPerSample+1], 1e-6)
	}
}

func TestModulateFMPhase(t *testing.T) {
	tr := newDSPTransmitter(2048)
	tr.devRate = 5644800 // 44.1 kHz input at the default sub-chunk size
	for idx := range tr.interp {
		tr.interp[idx] = 1
	}

	tr.modulate()

	// Replay the accumulation independently.
	inc := 2 * math.Pi * 75000 / 5644800
	phase := 0.0
	for idx := 0; idx < BufLen; idx++ {
		phase += inc
		for phase > math.Pi {
			phase -= 2 * math.Pi
		}
		if idx < 16 || idx == BufLen-1 {
			s, c := math.Sincos(phase)
			require.InDelta(t, s, tr.iq[idx*BytesPerSample], 1e-4, "I at %d", idx)
			require.InDelta(t, c, tr.iq[idx*BytesPerSample+1], 1e-4, "Q at %d", idx)
		}
	}
	assert.InDelta(t, phase, tr.phase, 1e-6)
}

func TestModulateFMProperties(t *testing.T) {
	tr := newDSPTransmitter(2048)
	tr.devRate = 1024000

	rapid.Check(t, func(rt *rapid.T) {
		gain := rapid.Float32Range(0, 2).Draw(rt, "gain")
		fill := rapid.Float32Range(-2, 2).Draw(rt, "fill")

		tr.localGain = gain
		tr.phase = 0
		for idx := range tr.interp {
			tr.interp[idx] = fill
		}

		tr.modulate()

		if math.Abs(tr.phase) > math.Pi {
			rt.Fatalf("phase %v escaped (-pi, pi]", tr.phase)
		}
		for idx := 0; idx < 32; idx++ {
			i, q := tr.iq[idx*BytesPerSample], tr.iq[idx*BytesPerSample+1]
			if i < -1 || i > 1 || q < -1 || q > 1 {
				rt.Fatalf("IQ (%v, %v) out of unit range at %d", i, q, idx)
			}
		}
	})
}

func TestQuantize(t *testing.T) {
	cases := []struct {
		in   float32
		want int8
	}{
		{0, 0},
		{1, 127},
		{-1, -127},
		{0.5, 64}, // round half away from zero
		{-0.5, -64},
		{2, 127},
		{-2, -127},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, quantize(c.in), "quantize(%v)", c.in)
	}
}
