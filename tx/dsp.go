package tx

import "math"

// interpolate linearly resamples the current sub-chunk to exactly BufLen
// samples. The first input sample blends with the tail of the previous
// sub-chunk so chunk audio stays continuous across ticks; the final output
// sample always equals the final input sample.
func (t *Transmitter) interpolate() {
	in := t.current[t.subOffset:]
	n := t.sampleCount
	ratio := float64(n) / BufLen

	j := 0
	pos := ratio
	for pos < 1 && j < BufLen-1 {
		t.interp[j] = t.last[3] + (in[0]-t.last[3])*float32(pos)
		j++
		pos = float64(j+1) * ratio
	}

	i := int(pos)
	for j < BufLen-1 {
		t.interp[j] = in[i-1] + (in[i]-in[i-1])*float32(pos-float64(i))
		j++
		pos = float64(j+1) * ratio
		i = int(pos)
	}

	t.interp[BufLen-1] = in[n-1]

	// Carry the last four input samples into the next tick.
	if n >= len(t.last) {
		copy(t.last[:], in[n-len(t.last):n])
	} else {
		copy(t.last[:], t.last[n:])
		copy(t.last[len(t.last)-n:], in[:n])
	}
}

// modulate converts the interpolated audio to IQ floats. FM integrates the
// gain-clipped input into a wrapped phase; AM carries the input directly on
// I. The (I,Q) = (sin, cos) assignment is part of the wire format and must
// not be normalised.
func (t *Transmitter) modulate() {
	if t.am {
		for idx := 0; idx < BufLen; idx++ {
			a := clip(t.interp[idx] * t.localGain)
			t.iq[idx*BytesPerSample] = a
			t.iq[idx*BytesPerSample+1] = 0
		}
		return
	}

	perUnit := 2 * math.Pi * t.fmDeviationHz / float64(t.devRate)
	for idx := 0; idx < BufLen; idx++ {
		a := clip(t.interp[idx] * t.localGain)

		t.phase += perUnit * float64(a)
		for t.phase > math.Pi {
			t.phase -= 2 * math.Pi
		}
		for t.phase < -math.Pi {
			t.phase += 2 * math.Pi
		}

		s, c := math.Sincos(t.phase)
		t.iq[idx*BytesPerSample] = float32(s)
		t.iq[idx*BytesPerSample+1] = float32(c)
	}
}

// clip bounds a sample to [-1, +1].
func clip(a float32) float32 {
	if a > 1 {
		return 1
	}
	if a < -1 {
		return -1
	}
	return a
}

// quantize maps an IQ float to a signed 8-bit sample, saturating at ±127.
func quantize(f float32) int8 {
	v := math.Round(float64(f) * 127)
	if v > 127 {
		v = 127
	} else if v < -127 {
		v = -127
	}
	return int8(v)
}
