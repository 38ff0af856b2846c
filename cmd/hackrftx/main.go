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

package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bemasher/hackrftx/csv"
	"github.com/bemasher/hackrftx/device"
	"github.com/bemasher/hackrftx/pcm"
	"github.com/bemasher/hackrftx/pocsag"
	"github.com/bemasher/hackrftx/tx"
)

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

var (
	freq      = flag.Uint64("freq", 141225000, "carrier frequency in Hz")
	gainRF    = flag.Float64("gain", 40, "tx vga gain in dB")
	amp       = flag.Bool("amp", false, "enable the RF amplifier")
	localGain = flag.Float64("localgain", 90, "input gain in percent")
	deviation = flag.Float64("deviation", 25, "FM deviation in kHz")
	subChunk  = flag.Int("subchunk", 4096, "input samples per tick")
	amMode    = flag.Bool("am", false, "transmit AM instead of FM")
	idleOff   = flag.Bool("idleoff", true, "halt the device while the queue is empty")

	wavFile = flag.String("wav", "", "transmit a wav file instead of a pager message")

	ric     = flag.Uint("ric", 1234567, "pager address")
	msgType = flag.String("type", "alpha", "message type: alpha, numeric or tone")
	message = flag.String("msg", "Hello World!", "message text")
	bps     = flag.Int("bps", 512, "pocsag speed: 512, 1200 or 2400")
	charset = flag.String("charset", "latin", "alphanumeric charset: raw, latin or cyrillic")
	fn      = flag.Uint("function", 0, "notification function 0..3")
	date    = flag.String("date", "none", "timestamp position: none, begin or end")

	logFile = flag.String("logcsv", "", "append a transmission record to this CSV file")
	version = flag.Bool("version", false, "display build information")
)

// logMsg is one row of the transmission log.
type logMsg struct {
	Time    time.Time
	Kind    string
	RIC     uint
	Samples int
}

func (m logMsg) Record() []string {
	return []string{
		m.Time.Format(time.RFC3339),
		m.Kind,
		strconv.FormatUint(uint64(m.RIC), 10),
		strconv.Itoa(m.Samples),
	}
}

func parseMessage() (pocsag.Message, error) {
	msg := pocsag.Message{
		Addr:     uint32(*ric),
		Text:     *message,
		Function: pocsag.Function(*fn),
	}

	switch *msgType {
	case "alpha":
		msg.Type = pocsag.Alphanumeric
	case "numeric":
		msg.Type = pocsag.Numeric
	case "tone":
		msg.Type = pocsag.Tone
	default:
		return msg, fmt.Errorf("unknown message type %q", *msgType)
	}

	switch *bps {
	case 512, 1200, 2400:
		msg.BPS = pocsag.BPS(*bps)
	default:
		return msg, fmt.Errorf("invalid bps %d", *bps)
	}

	switch *charset {
	case "raw":
		msg.Charset = pocsag.Raw
	case "latin":
		msg.Charset = pocsag.Latin
	case "cyrillic":
		msg.Charset = pocsag.Cyrillic
	default:
		return msg, fmt.Errorf("unknown charset %q", *charset)
	}

	return msg, nil
}

func makeSource() (*pcm.Source, string, error) {
	if *wavFile != "" {
		src, err := pcm.FromFile(*wavFile)
		return src, "wav", err
	}

	msg, err := parseMessage()
	if err != nil {
		return nil, "", err
	}

	enc := pocsag.NewEncoder()
	switch *date {
	case "none":
	case "begin":
		enc.DatePos = pocsag.DateBegin
	case "end":
		enc.DatePos = pocsag.DateEnd
	default:
		return nil, "", fmt.Errorf("unknown date position %q", *date)
	}

	wave, samples, err := enc.Encode(msg, false)
	if err != nil {
		return nil, "", err
	}
	log.WithFields(log.Fields{
		"RIC":     msg.Addr,
		"BPS":     *bps,
		"Samples": samples,
	}).Info("message encoded")

	src, err := pcm.FromWAV(wave)
	return src, *msgType, err
}

func main() {
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	src, kind, err := makeSource()
	if err != nil {
		log.Fatal(err)
	}

	xmtr, err := tx.NewTransmitter(device.NewHackRF(), float32(*localGain))
	if err != nil {
		log.Fatal(err)
	}
	defer xmtr.Close()

	for _, err := range []error{
		xmtr.SetFrequency(*freq),
		xmtr.SetGainRF(float32(*gainRF)),
		xmtr.SetAMP(*amp),
		xmtr.SetAM(*amMode),
		xmtr.SetFMDeviationKHz(*deviation),
		xmtr.SetSubChunkSize(*subChunk),
		xmtr.SetTurnOffTXWhenIdle(*idleOff),
	} {
		if err != nil {
			log.Fatal(err)
		}
	}

	xmtr.Push(src)

	if err := xmtr.Start(); err != nil {
		log.Fatal(err)
	}

	duration := time.Duration(len(src.Samples())) * time.Second / time.Duration(src.SampleRate())
	if !xmtr.WaitForIdle(duration + 30*time.Second) {
		log.Error("timed out waiting for transmission to drain")
	}

	if err := xmtr.Stop(); err != nil {
		log.Fatal(err)
	}

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()

		enc := csv.NewEncoder(f)
		err = enc.Encode(logMsg{time.Now(), kind, *ric, len(src.Samples())})
		if err != nil {
			log.Fatal(err)
		}
	}
}
