// HACKRFTX - A HackRF transmitter for POCSAG paging and FM/AM audio.
// Copyright (C) 2023 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package device

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/samuel/go-hackrf/hackrf"
)

// Baseband filter bandwidth in Hz, fixed for all sample rates.
const basebandFilterHz = 1750000

// HackRF drives a HackRF One through libhackrf.
type HackRF struct {
	dev     *hackrf.Device
	sink    Sink
	running atomic.Bool

	// Scratch for converting the driver's byte buffer to the sink's int8
	// view. Sized on first callback.
	scratch []int8
}

// NewHackRF returns an unopened HackRF device handle.
func NewHackRF() *HackRF {
	return &HackRF{}
}

// Open initialises libhackrf and claims the first available device.
func (h *HackRF) Open(sink Sink) error {
	if err := hackrf.Init(); err != nil {
		return errors.Wrap(err, "hackrf: init")
	}

	dev, err := hackrf.Open()
	if err != nil {
		hackrf.Exit()
		return errors.Wrap(err, "hackrf: open")
	}

	h.dev = dev
	h.sink = sink
	return nil
}

func (h *HackRF) Close() error {
	if h.dev == nil {
		return nil
	}
	err := h.dev.Close()
	h.dev = nil
	hackrf.Exit()
	return errors.Wrap(err, "hackrf: close")
}

func (h *HackRF) SetFrequency(hz uint64) error {
	return errors.Wrap(h.dev.SetFreq(hz), "hackrf: set frequency")
}

func (h *HackRF) SetGain(db float32) error {
	return errors.Wrap(h.dev.SetTXVGAGain(int(db)), "hackrf: set tx gain")
}

func (h *HackRF) SetAMP(on bool) error {
	return errors.Wrap(h.dev.SetAmpEnable(on), "hackrf: set amp")
}

func (h *HackRF) SetSampleRate(hz uint32) error {
	if err := h.dev.SetSampleRate(float64(hz)); err != nil {
		return errors.Wrap(err, "hackrf: set sample rate")
	}
	return errors.Wrap(h.dev.SetBasebandFilterBandwidth(basebandFilterHz), "hackrf: set baseband filter")
}

// StartTx starts streaming. The driver thread pulls buffers through the
// registered sink until StopTx.
func (h *HackRF) StartTx() error {
	err := h.dev.StartTX(func(buf []byte) error {
		if len(h.scratch) < len(buf) {
			h.scratch = make([]int8, len(buf))
		}
		h.sink.OnData(h.scratch[:len(buf)])
		for idx, s := range h.scratch[:len(buf)] {
			buf[idx] = byte(s)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "hackrf: start tx")
	}
	h.running.Store(true)
	return nil
}

func (h *HackRF) StopTx() error {
	if err := h.dev.StopTX(); err != nil {
		return errors.Wrap(err, "hackrf: stop tx")
	}
	h.running.Store(false)
	return nil
}

func (h *HackRF) IsRunning() bool {
	return h.running.Load()
}
