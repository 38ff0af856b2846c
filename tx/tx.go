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

// Package tx streams mono PCM audio to an SDR transmitter as narrowband FM
// or AM. A worker goroutine consumes queued chunks, resamples them to the
// device rate, computes IQ samples and hands quantized buffers to the
// device callback through a fixed ring.
package tx

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bemasher/hackrftx/device"
	"github.com/bemasher/hackrftx/pcm"
)

const (
	// BufLen is the interpolated sample count per sub-chunk, matching the
	// device's transfer size.
	BufLen = 262144

	// BytesPerSample covers the interleaved I and Q bytes.
	BytesPerSample = 2

	// BufNum is the ring depth.
	BufNum = 256
)

const (
	startTimeout = 10 * time.Second
	stopTimeout  = 30 * time.Second
	pollInterval = 10 * time.Millisecond
)

// ErrActive is returned by configuration mutators while transmission is
// running.
var ErrActive = errors.New("tx: configuration change while transmission is active")

// Transmitter owns an SDR device and streams queued PCM chunks to it.
type Transmitter struct {
	dev device.TX

	// Incoming chunks. pcmRate rides along under the same lock because the
	// worker derives the device rate from it on every prepare.
	queueMu    sync.Mutex
	queue      [][]float32
	current    []float32
	emptyQueue bool
	pcmRate    uint32

	// Ring shared with the device callback.
	devMu sync.Mutex
	ready *sync.Cond // fires on drain-to-zero and on stop
	isRdy bool
	ring  [BufNum][]int8
	head  int
	tail  int
	fill  int

	// Worker-owned DSP state.
	subOffset   int
	sampleCount int
	last        [4]float32
	interp      []float32
	iq          []float32
	phase       float64
	devRate     uint32

	// Configuration, mutable only while stopped.
	localGain       float32
	subChunkSamples int
	fmDeviationHz   float64
	am              bool
	noIdleTx        bool

	txOn    atomic.Bool
	stop    atomic.Bool
	started chan bool
	stopped chan bool
	wg      sync.WaitGroup
}

// NewTransmitter opens dev and returns a transmitter feeding it. localGain
// is a percentage; 100 passes input through at unit gain.
func NewTransmitter(dev device.TX, localGain float32) (*Transmitter, error) {
	t := &Transmitter{
		dev:             dev,
		localGain:       localGain / 100,
		subChunkSamples: 2048,
		fmDeviationHz:   75000,
		emptyQueue:      true,
		interp:          make([]float32, BufLen),
		iq:              make([]float32, BufLen*BytesPerSample),
	}
	t.ready = sync.NewCond(&t.devMu)
	for idx := range t.ring {
		t.ring[idx] = make([]int8, BufLen)
	}

	if err := dev.Open(t); err != nil {
		return nil, errors.Wrap(err, "tx: open device")
	}
	return t, nil
}

// Close stops any active transmission and releases the device.
func (t *Transmitter) Close() error {
	if t.txOn.Load() {
		if err := t.Stop(); err != nil {
			return err
		}
	}
	t.devMu.Lock()
	defer t.devMu.Unlock()
	return t.dev.Close()
}

// SetFrequency tunes the carrier. Rejected while running.
func (t *Transmitter) SetFrequency(hz uint64) error {
	if t.txOn.Load() {
		return ErrActive
	}
	return t.dev.SetFrequency(hz)
}

// SetGainRF forwards the TX gain to the device. Rejected while running.
func (t *Transmitter) SetGainRF(db float32) error {
	if t.txOn.Load() {
		return ErrActive
	}
	return t.dev.SetGain(db)
}

// SetAMP toggles the device's RF amplifier. Rejected while running.
func (t *Transmitter) SetAMP(on bool) error {
	if t.txOn.Load() {
		return ErrActive
	}
	return t.dev.SetAMP(on)
}

// SetLocalGain scales input samples by a percentage before modulation.
func (t *Transmitter) SetLocalGain(pct float32) error {
	if t.txOn.Load() {
		return ErrActive
	}
	t.localGain = pct / 100
	return nil
}

// SetAM selects AM modulation instead of FM.
func (t *Transmitter) SetAM(am bool) error {
	if t.txOn.Load() {
		return ErrActive
	}
	t.am = am
	return nil
}

// SetFMDeviationKHz sets the FM frequency deviation.
func (t *Transmitter) SetFMDeviationKHz(khz float64) error {
	if t.txOn.Load() {
		return ErrActive
	}
	t.fmDeviationHz = khz * 1000
	return nil
}

// SetSubChunkSize sets how many input samples are consumed per tick. The
// device sample rate is derived from it, so smaller sub-chunks mean a
// higher device rate.
func (t *Transmitter) SetSubChunkSize(samples int) error {
	if t.txOn.Load() {
		return ErrActive
	}
	if samples < 4 || samples > BufLen {
		return errors.Errorf("tx: sub-chunk size %d out of range", samples)
	}
	t.subChunkSamples = samples
	return nil
}

// SetPCMSampleRate overrides the input sample rate. Push normally supplies
// it from the source.
func (t *Transmitter) SetPCMSampleRate(hz uint32) error {
	if t.txOn.Load() {
		return ErrActive
	}
	t.queueMu.Lock()
	t.pcmRate = hz
	t.queueMu.Unlock()
	return nil
}

// SetTurnOffTXWhenIdle halts the device whenever the queue drains, and
// restarts it on the next chunk.
func (t *Transmitter) SetTurnOffTXWhenIdle(off bool) error {
	if t.txOn.Load() {
		return ErrActive
	}
	t.noIdleTx = off
	return nil
}

// Clear drops all queued audio. Rejected while running.
func (t *Transmitter) Clear() error {
	if t.txOn.Load() {
		return ErrActive
	}
	t.queueMu.Lock()
	t.queue = nil
	t.current = nil
	t.emptyQueue = true
	t.queueMu.Unlock()
	t.subOffset = 0
	t.phase = 0
	return nil
}

// Push queues a chunk for transmission. Allowed at any time, including
// while transmission is active.
func (t *Transmitter) Push(src *pcm.Source) {
	chunk := make([]float32, len(src.Samples()))
	copy(chunk, src.Samples())

	t.queueMu.Lock()
	defer t.queueMu.Unlock()

	if !t.txOn.Load() || t.pcmRate == 0 {
		t.pcmRate = src.SampleRate()
	}
	t.queue = append(t.queue, chunk)
	t.emptyQueue = false
}

// Start launches the worker and waits for the device to begin streaming.
func (t *Transmitter) Start() error {
	if t.txOn.Load() {
		return errors.New("tx: already running")
	}

	t.queueMu.Lock()
	if len(t.current) == 0 {
		t.subOffset = 0
		t.phase = 0
		if len(t.queue) > 0 && t.pcmRate != 0 {
			t.devRate = deviceRate(t.pcmRate, t.subChunkSamples)
			if err := t.dev.SetSampleRate(t.devRate); err != nil {
				t.queueMu.Unlock()
				return errors.Wrap(err, "tx: set sample rate")
			}
		}
	}
	t.queueMu.Unlock()

	t.stop.Store(false)
	t.setReady(true)
	t.txOn.Store(true)
	t.started = make(chan bool, 1)
	t.stopped = make(chan bool, 1)

	t.wg.Add(1)
	go t.worker()

	select {
	case ok := <-t.started:
		if !ok {
			t.wg.Wait()
			return errors.New("tx: device failed to start transmission")
		}
	case <-time.After(startTimeout):
		return errors.New("tx: timed out waiting for transmission to start")
	}

	log.WithFields(log.Fields{
		"SubChunk":   t.subChunkSamples,
		"DeviceRate": t.devRate,
		"AM":         t.am,
	}).Info("transmission started")

	return nil
}

// Stop halts the worker and joins it. A device that fails to stop within
// the timeout surfaces as an error.
func (t *Transmitter) Stop() error {
	if !t.txOn.Load() {
		return errors.New("tx: not running")
	}

	t.stop.Store(true)
	t.setReady(false) // wake the worker if it's waiting on the ring

	select {
	case ok := <-t.stopped:
		t.wg.Wait()
		t.devRate = 0
		if !ok {
			return errors.New("tx: device failed to stop transmission")
		}
	case <-time.After(stopTimeout):
		return errors.New("tx: timed out waiting for transmission to stop")
	}

	log.Info("transmission stopped")
	return nil
}

// IsRunning reports whether the worker is active.
func (t *Transmitter) IsRunning() bool {
	return t.txOn.Load()
}

// IsIdle reports whether the transmitter is running with nothing left to
// send.
func (t *Transmitter) IsIdle() bool {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()
	return len(t.current) == 0 && t.emptyQueue && t.txOn.Load()
}

// WaitForEnd polls until the transmitter leaves the running state or the
// timeout elapses.
func (t *Transmitter) WaitForEnd(timeout time.Duration) bool {
	for waited := time.Duration(0); waited < timeout; waited += pollInterval {
		if !t.txOn.Load() {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}

// WaitForIdle polls until the queue and current chunk drain or the timeout
// elapses.
func (t *Transmitter) WaitForIdle(timeout time.Duration) bool {
	for waited := time.Duration(0); waited < timeout; waited += pollInterval {
		if t.IsIdle() {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}

// DeviceSampleRate returns the rate most recently programmed into the
// device, zero before the first chunk and after Stop.
func (t *Transmitter) DeviceSampleRate() uint32 {
	return t.devRate
}

// deviceRate derives the device sample rate from the input rate and the
// sub-chunk size: every sub-chunk expands to exactly BufLen samples.
func deviceRate(pcmRate uint32, subChunkSamples int) uint32 {
	return uint32(math.Round(float64(pcmRate) / float64(subChunkSamples) * BufLen))
}

// worker is the producer loop: it adopts chunks from the queue, prepares
// sub-chunks and publishes them to the ring until told to stop.
func (t *Transmitter) worker() {
	defer t.wg.Done()

	if err := t.dev.StartTx(); err != nil {
		log.WithError(err).Error("device start failed")
		t.txOn.Store(false)
		t.started <- false
		return
	}
	t.started <- true

	// We start the device even with nothing queued to prove it works;
	// suspend it again right away when idle transmission is off.
	t.queueMu.Lock()
	idle := len(t.current) == 0 && len(t.queue) == 0
	t.queueMu.Unlock()
	if t.noIdleTx && idle {
		if err := t.dev.StopTx(); err != nil {
			log.WithError(err).Error("device stop failed")
		}
	}

	for !t.stop.Load() {
		t.queueMu.Lock()
		if len(t.current) > 0 {
			t.queueMu.Unlock()
			t.processSubChunks()
			continue
		}

		if len(t.queue) == 0 {
			t.emptyQueue = true
			t.queueMu.Unlock()
			runtime.Gosched()
			continue
		}

		t.current = t.queue[0]
		t.queue = t.queue[1:]
		t.queueMu.Unlock()

		t.subOffset = 0
		t.phase = 0
		t.last = [4]float32{}

		if !t.prepareNext() {
			t.clearCurrent()
			continue
		}
		t.processSubChunks()
	}

	t.txOn.Store(false)
	t.stopped <- t.dev.StopTx() == nil
}

// processSubChunks publishes prepared sub-chunks one ring hand-off at a
// time until the current chunk is exhausted or stop is requested.
func (t *Transmitter) processSubChunks() {
	for !t.stop.Load() {
		t.waitReady()
		if t.stop.Load() {
			return
		}

		// Restart the device if it was suspended while idle.
		if !t.dev.IsRunning() {
			if err := t.dev.StartTx(); err != nil {
				log.WithError(err).Error("device restart failed")
			}
		}

		t.publish()

		if !t.prepareNext() {
			t.queueMu.Lock()
			queueEmpty := len(t.queue) == 0
			t.queueMu.Unlock()

			if t.noIdleTx && queueEmpty {
				// Let the callback drain what we just published before
				// suspending, so the tail of the chunk reaches the air and
				// the ready hand-off is armed for the next chunk.
				t.waitReady()
				if err := t.dev.StopTx(); err != nil {
					log.WithError(err).Error("device stop failed")
				}
			}
			break
		}
	}

	if !t.stop.Load() {
		t.clearCurrent()
	}
}

func (t *Transmitter) clearCurrent() {
	t.queueMu.Lock()
	t.current = nil
	t.queueMu.Unlock()
	t.subOffset = 0
}

// prepareNext interpolates and modulates the next sub-chunk of the current
// chunk. It returns false once the chunk is fully consumed.
func (t *Transmitter) prepareNext() bool {
	if t.subOffset >= len(t.current) {
		return false
	}

	remaining := len(t.current) - t.subOffset
	t.sampleCount = t.subChunkSamples
	if remaining < t.sampleCount {
		t.sampleCount = remaining
	}

	t.queueMu.Lock()
	rate := deviceRate(t.pcmRate, t.subChunkSamples)
	t.queueMu.Unlock()

	if rate != t.devRate {
		t.devRate = rate
		if err := t.dev.SetSampleRate(rate); err != nil {
			log.WithError(err).WithField("SampleRate", rate).Error("device sample rate change failed")
		}
	}

	t.interpolate()
	t.modulate()

	t.subOffset += t.sampleCount
	return true
}
