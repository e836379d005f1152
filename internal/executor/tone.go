package executor

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

// SirenFormat is the PCM format produced by Siren
var SirenFormat = AudioFormat{SampleRate: 44100, Channels: 1}

const (
	sirenPulse    = 250 * time.Millisecond
	sirenLFORate  = 5.0
	sirenLFODepth = 100.0
)

// Siren synthesises the alarm tone: a sawtooth around 800 Hz swept by a
// 5 Hz LFO plus a 1000 Hz square wave. Every 250 ms the pulse flips the
// gain between 1 and 0.1 and the pitches to 700 Hz and 1100 Hz.
type Siren struct {
	sampleRate int
	total      int
	n          int
	sawPhase   float64
	sqrPhase   float64
}

// NewSiren returns a reader producing d worth of audio
func NewSiren(d time.Duration) *Siren {
	sr := SirenFormat.SampleRate
	return &Siren{
		sampleRate: sr,
		total:      int(d.Seconds() * float64(sr)),
	}
}

func (s *Siren) Read(p []byte) (int, error) {
	if s.n >= s.total {
		return 0, io.EOF
	}
	i := 0
	for ; i+1 < len(p) && s.n < s.total; i += 2 {
		binary.LittleEndian.PutUint16(p[i:], uint16(s.next()))
		s.n++
	}
	return i, nil
}

func (s *Siren) next() int16 {
	t := float64(s.n) / float64(s.sampleRate)
	high := int(t/sirenPulse.Seconds())%2 == 0

	gain, sawFreq, sqrFreq := 1.0, 800.0, 1000.0
	if !high {
		gain, sawFreq, sqrFreq = 0.1, 700.0, 1100.0
	}
	sawFreq += sirenLFODepth * math.Sin(2*math.Pi*sirenLFORate*t)

	s.sawPhase = advance(s.sawPhase, sawFreq, s.sampleRate)
	s.sqrPhase = advance(s.sqrPhase, sqrFreq, s.sampleRate)

	saw := 2*s.sawPhase - 1
	sqr := 1.0
	if s.sqrPhase >= 0.5 {
		sqr = -1
	}

	// Two summed oscillators at half amplitude, with headroom.
	v := gain * 0.45 * (saw + sqr)
	return int16(v * math.MaxInt16)
}

func advance(phase, freq float64, sampleRate int) float64 {
	phase += freq / float64(sampleRate)
	return phase - math.Floor(phase)
}
