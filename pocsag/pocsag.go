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

// Package pocsag encodes numeric, alphanumeric and tone pager messages into
// POCSAG frame streams, and optionally modulates them into PCM audio ready
// for an FM transmitter.
package pocsag

import (
	"time"

	"github.com/pkg/errors"

	"github.com/bemasher/hackrftx/bch"
	"github.com/bemasher/hackrftx/bits"
	"github.com/bemasher/hackrftx/wav"
)

// Protocol constants.
const (
	SyncCodeword uint32 = 0x7CD215D8
	IdleCodeword uint32 = 0x7A89C197

	// Message codewords carry a set top bit, address codewords a clear one.
	messageBit uint32 = 1 << 31

	PreambleBytes = 72
	preambleByte  = 0xAA

	FramesPerBatch    = 8
	CodewordsPerFrame = 2
	CodewordsPerBatch = 17 // sync + 16 content

	// Payload bits per codeword; the rest is the type bit and signing.
	dataBits = 20

	numericCharBits = 4
	alphaCharBits   = 7

	// AddrMax is the largest valid RIC, 21 bits.
	AddrMax = 2097151
)

// Data bits per batch: 8 frames of 2 codewords of 20 bits.
const batchDataBits = FramesPerBatch * CodewordsPerFrame * dataBits

var signer = bch.NewBCH(bch.GenPoly, 21)

// Type selects the message payload encoding.
type Type int

const (
	Numeric Type = iota
	Alphanumeric
	Tone
)

// Charset selects the alphanumeric re-encoding applied before framing.
type Charset int

const (
	Raw Charset = iota
	Latin
	Cyrillic
)

// Function is the 2-bit notification class carried in the address codeword.
type Function uint32

const (
	FuncA Function = iota
	FuncB
	FuncC
	FuncD
)

// BPS is the POCSAG transmission speed.
type BPS uint16

const (
	BPS512  BPS = 512
	BPS1200 BPS = 1200
	BPS2400 BPS = 2400
)

// DateTimePosition controls optional timestamp injection into the message.
type DateTimePosition int

const (
	DateNone DateTimePosition = iota
	DateBegin
	DateEnd
)

const dateLayout = "02.01.2006 15:04:05"

// Message is one pager transmission.
type Message struct {
	Addr     uint32 // RIC, 0..AddrMax
	Type     Type
	Text     string
	BPS      BPS
	Charset  Charset
	Function Function
}

// Encoder builds POCSAG frame streams and their PCM renditions.
type Encoder struct {
	// SampleRate and Amplitude shape the PCM output of Encode and Modulate.
	SampleRate uint32
	Amplitude  int16

	// MaxBatches bounds the framed message length; Encode fails beyond it.
	MaxBatches int

	// DatePos injects the transmission timestamp into the message text.
	DatePos DateTimePosition

	// Now supplies the timestamp for DatePos. Defaults to time.Now, which
	// formats in the process-local timezone. Replace for deterministic
	// output.
	Now func() time.Time
}

// NewEncoder returns an encoder with the customary defaults: 44.1 kHz PCM,
// amplitude 5000, at most 8 batches, no timestamp.
func NewEncoder() *Encoder {
	return &Encoder{
		SampleRate: 44100,
		Amplitude:  5000,
		MaxBatches: 8,
		DatePos:    DateNone,
		Now:        time.Now,
	}
}

// Encode builds the framed byte stream for msg. With raw set the stream is
// returned as-is along with its length in bits. Otherwise the stream is
// modulated to PCM, wrapped in a WAV container and returned along with the
// PCM sample count.
func (e *Encoder) Encode(msg Message, raw bool) ([]byte, int, error) {
	if msg.Addr > AddrMax {
		return nil, 0, errors.Errorf("pocsag: address %d out of range, max is %d", msg.Addr, AddrMax)
	}

	cells, width, err := e.messageCells(msg)
	if err != nil {
		return nil, 0, err
	}
	maxBits := len(cells) * int(width)

	addrFrame := int(msg.Addr & 0b111)

	// Frames preceding the address plus the address slot itself.
	addrBitSkip := addrFrame*CodewordsPerFrame*dataBits + dataBits

	totalBits := addrBitSkip + maxBits
	batchCount := (totalBits + batchDataBits - 1) / batchDataBits

	// One extra batch when the stream ends in frame 7, so receivers don't
	// decode trailing garbage as message characters.
	if (totalBits-1)%batchDataBits/(CodewordsPerFrame*dataBits) == FramesPerBatch-1 {
		batchCount++
	}

	if batchCount > e.MaxBatches {
		return nil, 0, errors.Errorf("pocsag: message needs %d batches, max is %d", batchCount, e.MaxBatches)
	}

	out := make([]byte, 0, PreambleBytes+batchCount*CodewordsPerBatch*4)
	for i := 0; i < PreambleBytes; i++ {
		out = append(out, preambleByte)
	}

	addrSet := false
	offset := 0
	for batch := 0; batch < batchCount; batch++ {
		out = bits.AppendUint32(out, SyncCodeword)

		for frame := 0; frame < FramesPerBatch; frame++ {
			if !addrSet && frame != addrFrame {
				out = bits.AppendUint32(out, IdleCodeword)
				out = bits.AppendUint32(out, IdleCodeword)
				continue
			}

			if !addrSet {
				out = bits.AppendUint32(out, addressCodeword(msg.Addr, msg.Function))
				addrSet = true
			} else {
				out = bits.AppendUint32(out, messageCodeword(cells, width, &offset, maxBits))
			}
			out = bits.AppendUint32(out, messageCodeword(cells, width, &offset, maxBits))
		}
	}

	if raw {
		return out, len(out) * 8, nil
	}

	samples := e.Modulate(out, msg.BPS)
	return wav.EncodeMono16(samples, e.SampleRate), len(samples), nil
}

// messageCells re-encodes and maps the message text into bit-reversed
// character cells of the payload width.
func (e *Encoder) messageCells(msg Message) (cells []uint8, width uint, err error) {
	if msg.Type == Tone {
		return nil, numericCharBits, nil
	}

	var text []byte
	if msg.Type == Alphanumeric {
		text = reencode(msg.Text, msg.Charset)
	} else {
		text = []byte(msg.Text)
	}

	switch e.DatePos {
	case DateBegin:
		text = append([]byte(e.Now().Format(dateLayout)+" \n"), text...)
	case DateEnd:
		text = append(text, e.Now().Format(dateLayout)+" \n"...)
	}

	if msg.Type == Numeric {
		cells = make([]uint8, len(text))
		for idx := range text {
			v, err := numericValue(text[idx])
			if err != nil {
				return nil, 0, err
			}
			cells[idx] = uint8(bits.Reverse(uint32(v), numericCharBits))
		}
		return cells, numericCharBits, nil
	}

	cells = make([]uint8, len(text))
	for idx := range text {
		cells[idx] = uint8(bits.Reverse(uint32(text[idx]), alphaCharBits))
	}
	if len(cells) > 0 && cells[len(cells)-1] != 0 {
		cells = append(cells, 0)
	}
	return cells, alphaCharBits, nil
}

// addressCodeword places the RIC's top 18 bits and the function code, then
// signs. The low 3 address bits are implied by the frame position.
func addressCodeword(addr uint32, fn Function) uint32 {
	return signer.Sign(addr>>3<<13 | uint32(fn&3)<<11)
}

// messageCodeword consumes up to 20 bits from the cell buffer at *offset,
// emitting each cell MSB-first. Short payloads are padded: numeric with
// bit-reversed spaces, alphanumeric with zeros. Past the end of the buffer
// it yields the idle codeword.
func messageCodeword(cells []uint8, width uint, offset *int, maxBits int) uint32 {
	if *offset >= maxBits || len(cells) == 0 {
		return IdleCodeword
	}

	var cw uint32
	count := 0
	bit := *offset % int(width)
	for idx := *offset / int(width); idx < len(cells) && count < dataBits; idx++ {
		for ; bit < int(width) && count < dataBits; bit++ {
			cw = cw<<1 | uint32(cells[idx]>>(int(width)-1-bit))&1
			count++
		}
		bit = 0
	}

	if count < dataBits {
		if width == numericCharBits {
			pad := bits.Reverse(0xC, numericCharBits) // space
			for i := 0; i < (dataBits-count)/int(width); i++ {
				cw = cw<<width | pad
			}
		} else {
			cw <<= uint(dataBits - count)
		}
	}

	*offset += count
	return signer.Sign(cw<<11 | messageBit)
}

// numericValue maps a character to its 4-bit numeric code.
func numericValue(c byte) (uint8, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c == '*':
		return 0xA, nil
	case c == 'U' || c == 'u':
		return 0xB, nil
	case c == ' ' || c == '\n':
		return 0xC, nil
	case c == '-':
		return 0xD, nil
	case c == ')' || c == ']':
		return 0xE, nil
	case c == '(' || c == '[':
		return 0xF, nil
	}
	return 0, errors.Errorf("pocsag: no numeric mapping for character %q", c)
}
