package tcs34725

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// InterruptPin is the digital input wired to the chip's INT line. It is a
// subset of gpio.PinIn.
type InterruptPin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
}

// LEDPin is a subset of gpio.PinOut.
type LEDPin interface {
	Out(l gpio.Level) error
}

// Notification signals that the chip latched a threshold crossing. Err is set
// when the latch could not be cleared; no further edges will arrive until it
// is.
type Notification struct {
	Time time.Time
	Err  error
}

// WaitForEdge is polled so that DisableInterrupt can stop the watcher.
const edgePollInterval = 50 * time.Millisecond

// subscription exists for exactly one Armed period.
type subscription struct {
	low, high uint16
	ch        chan Notification
	stop      chan struct{}
	done      chan struct{}
}

// EnableInterrupt programs the clear channel thresholds and arms the
// interrupt. A Notification is sent on the returned channel each time the
// INT line falls, after the chip's latch has been cleared. The channel is
// closed by DisableInterrupt.
//
// Calling EnableInterrupt while already armed only rewrites the thresholds
// and returns the same channel.
func (tcs *TCS34725) EnableInterrupt(low, high uint16) (<-chan Notification, error) {
	if low > high {
		return nil, ErrInvalidThresholds
	}
	tcs.mu.Lock()
	defer tcs.mu.Unlock()

	if tcs.intPin == nil {
		return nil, ErrNoInterruptPin
	}
	if err := tcs.writeThresholds(low, high); err != nil {
		return nil, err
	}
	if tcs.sub != nil {
		tcs.sub.low, tcs.sub.high = low, high
		l.Debugf("Interrupt thresholds updated - Low: %d, High: %d", low, high)
		return tcs.sub.ch, nil
	}

	// A latch left over from before arming would hold INT low and no falling
	// edge would ever be seen.
	if err := tcs.command(TCS34725_CMD_CLEAR_INTERRUPT); err != nil {
		return nil, err
	}
	if err := tcs.writeEnable(TCS34725_ENABLE_AIEN, true); err != nil {
		return nil, err
	}
	if err := tcs.intPin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		if rerr := tcs.writeEnable(TCS34725_ENABLE_AIEN, false); rerr != nil {
			l.WithError(rerr).Error("Failed to clear AIEN after pin setup failure")
		}
		return nil, err
	}

	sub := &subscription{
		low:  low,
		high: high,
		ch:   make(chan Notification),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	tcs.sub = sub
	go tcs.watchInterrupts(sub)
	l.Debugf("Interrupt armed - Low: %d, High: %d", low, high)
	return sub.ch, nil
}

// DisableInterrupt clears the interrupt enable bit and stops edge detection.
// Once it returns no more notifications are delivered. It is a no-op when
// the interrupt is not armed.
func (tcs *TCS34725) DisableInterrupt() error {
	tcs.mu.Lock()
	sub := tcs.sub
	if sub == nil {
		tcs.mu.Unlock()
		return nil
	}
	tcs.sub = nil
	err := tcs.writeEnable(TCS34725_ENABLE_AIEN, false)
	tcs.mu.Unlock()

	close(sub.stop)
	<-sub.done
	if perr := tcs.intPin.In(gpio.PullUp, gpio.NoEdge); err == nil {
		err = perr
	}
	l.Debug("Interrupt disarmed")
	return err
}

// Thresholds returns the armed threshold pair. ok is false when disarmed.
func (tcs *TCS34725) Thresholds() (low, high uint16, ok bool) {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()
	if tcs.sub == nil {
		return 0, 0, false
	}
	return tcs.sub.low, tcs.sub.high, true
}

func (tcs *TCS34725) writeThresholds(low, high uint16) error {
	writes := [...]struct {
		reg   byte
		value byte
	}{
		{TCS34725_REGISTER_AILTL, byte(low)},
		{TCS34725_REGISTER_AILTH, byte(low >> 8)},
		{TCS34725_REGISTER_AIHTL, byte(high)},
		{TCS34725_REGISTER_AIHTH, byte(high >> 8)},
	}
	for _, w := range writes {
		if err := tcs.write8(w.reg, w.value); err != nil {
			return err
		}
	}
	return nil
}

func (tcs *TCS34725) watchInterrupts(sub *subscription) {
	defer close(sub.done)
	defer close(sub.ch)
	for {
		select {
		case <-sub.stop:
			return
		default:
		}
		if !tcs.intPin.WaitForEdge(edgePollInterval) {
			continue
		}

		tcs.mu.Lock()
		if tcs.sub != sub {
			tcs.mu.Unlock()
			return
		}
		// Clear the latch first, then notify.
		err := tcs.command(TCS34725_CMD_CLEAR_INTERRUPT)
		tcs.mu.Unlock()
		if err != nil {
			l.WithError(err).Error("Failed to clear interrupt latch")
		}

		select {
		case sub.ch <- Notification{Time: time.Now(), Err: err}:
		case <-sub.stop:
			return
		}
	}
}

func levelOf(on bool) gpio.Level {
	if on {
		return gpio.High
	}
	return gpio.Low
}
