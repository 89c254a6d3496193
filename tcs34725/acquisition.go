package tcs34725

import (
	"fmt"
	"time"
)

// Sample is one reading of the four color channels.
type Sample struct {
	Clear uint16 `json:"clear"`
	Red   uint16 `json:"red"`
	Green uint16 `json:"green"`
	Blue  uint16 `json:"blue"`
}

var channels = [...]struct {
	name string
	reg  byte
}{
	{"clear", TCS34725_REGISTER_CDATAL},
	{"red", TCS34725_REGISTER_RDATAL},
	{"green", TCS34725_REGISTER_GDATAL},
	{"blue", TCS34725_REGISTER_BDATAL},
}

// ReadSample reads the clear, red, green and blue channels, in that order.
// The chip latches each channel independently, so the four values are only
// from the same integration cycle if the read completes within one cycle.
// ErrDisabled is decided from the last ENABLE value this handle wrote.
func (tcs *TCS34725) ReadSample() (Sample, error) {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()

	if !tcs.enabled() {
		return Sample{}, ErrDisabled
	}
	var v [len(channels)]uint16
	for i, ch := range channels {
		n, err := tcs.read16(ch.reg)
		if err != nil {
			return Sample{}, fmt.Errorf("tcs34725: %s channel: %w", ch.name, err)
		}
		v[i] = n
	}
	s := Sample{Clear: v[0], Red: v[1], Green: v[2], Blue: v[3]}
	l.Debugf("Sample read: %+v", s)
	return s, nil
}

// SetOptimalGain tries each gain from highest to lowest and keeps the first
// one where the clear channel stays below 90% of full scale.
func (tcs *TCS34725) SetOptimalGain() error {
	gainOptions := []Gain{TCS34725_GAIN_60X, TCS34725_GAIN_16X, TCS34725_GAIN_4X, TCS34725_GAIN_1X}
	timing := tcs.IntegrationTime()
	limit := uint32(timing.MaxCount()) * 9 / 10
	for _, gain := range gainOptions {
		if err := tcs.SetGain(gain); err != nil {
			return err
		}
		l.Debugf("Attempting - Gain: %v, Integration Time: %v", gain, timing)
		// The new gain applies from the next full cycle.
		time.Sleep(2 * timing.Duration())
		s, err := tcs.ReadSample()
		if err != nil {
			return err
		}
		if uint32(s.Clear) < limit {
			l.Debugf("Set - Gain: %v, Integration Time: %v", gain, timing)
			return nil
		}
	}
	return ErrSaturated
}
