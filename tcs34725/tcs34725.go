package tcs34725

/*
 * tcs34725 - Package for interacting with TCS34725 RGB color sensors.
 *
 * Ref:
 * https://github.com/adafruit/Adafruit_TCS34725
 * https://cdn-shop.adafruit.com/datasheets/TCS34725.pdf
 *
 */

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/io/i2c"
	periphi2c "periph.io/x/conn/v3/i2c"
)

var l *logrus.Logger

func init() {
	l = logrus.New()
	// Setup the logger, so it can be parsed by datadog
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	// Set the log level
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))
	switch logLevel {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info":
		l.SetLevel(logrus.InfoLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}

var (
	ErrUnrecognizedDevice = errors.New("tcs34725: unrecognized device")
	ErrDisabled           = errors.New("tcs34725: sensor must be enabled")
	ErrNoInterruptPin     = errors.New("tcs34725: no interrupt pin configured")
	ErrNoLED              = errors.New("tcs34725: no LED pin configured")
	ErrInvalidThresholds  = errors.New("tcs34725: low threshold above high threshold")
	ErrSaturated          = errors.New("tcs34725: all gain options are saturated")
)

// The oscillator needs 2.4ms after PON before the ADC may be enabled.
const powerOnDelay = 3 * time.Millisecond

// Opts holds the configuration applied during initialization.
type Opts struct {
	IntegrationTime IntegrationTime
	Gain            Gain
	// InterruptPin is wired to the chip's open-drain INT output. Required for
	// EnableInterrupt.
	InterruptPin InterruptPin
	// LED drives the board's illumination LED, if any.
	LED LEDPin
}

// DefaultOpts is used when nil Opts are passed to New.
var DefaultOpts = Opts{
	IntegrationTime: TCS34725_INTEGRATIONTIME_2_4MS,
	Gain:            TCS34725_GAIN_1X,
}

// TCS34725 is a handle to an initialized sensor. All register traffic on a
// handle is serialized.
type TCS34725 struct {
	mu     sync.Mutex
	bus    Bus
	closer io.Closer

	enable byte
	timing IntegrationTime
	gain   Gain

	intPin InterruptPin
	led    LEDPin
	sub    *subscription
}

// New verifies the chip identity on bus and runs the power-on sequence. The
// handle is only returned if every step succeeded; on failure the caller must
// start over with a new call.
func New(bus Bus, opts *Opts) (*TCS34725, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	tcs := &TCS34725{
		bus:    bus,
		intPin: opts.InterruptPin,
		led:    opts.LED,
	}
	if err := tcs.initialize(opts.IntegrationTime, opts.Gain); err != nil {
		return nil, err
	}
	l.Debugf("TCS34725 ready - Gain: %v, Integration Time: %v", tcs.gain, tcs.timing)
	return tcs, nil
}

// NewI2C connects to a TCS34725 on a periph.io bus. If bus is an io.Closer
// it is closed with the handle.
func NewI2C(bus periphi2c.Bus, opts *Opts) (*TCS34725, error) {
	tcs, err := New(&periphi2c.Dev{Bus: bus, Addr: TCS34725_ADDR}, opts)
	if err != nil {
		return nil, err
	}
	if c, ok := bus.(io.Closer); ok {
		tcs.closer = c
	}
	return tcs, nil
}

// NewTCS34725 connects via the Linux I2C device file and sets gain and timing.
func NewTCS34725(gain Gain, timing IntegrationTime, path string) (*TCS34725, error) {
	return NewDevfs(path, &Opts{IntegrationTime: timing, Gain: gain})
}

// NewDevfs connects via the Linux I2C device file at path. Pins in opts are
// used as given.
func NewDevfs(path string, opts *Opts) (*TCS34725, error) {
	if path == "" {
		// i2c-1 is the default I2C bus for the Raspberry Pi
		path = "/dev/i2c-1"
	}
	device, err := i2c.Open(&i2c.Devfs{Dev: path}, int(TCS34725_ADDR))
	if err != nil {
		return nil, fmt.Errorf("tcs34725: failed to open %s: %w", path, err)
	}
	tcs, err := New(&devfsBus{dev: device}, opts)
	if err != nil {
		device.Close()
		return nil, err
	}
	tcs.closer = device
	return tcs, nil
}

// devfsBus adapts a golang.org/x/exp/io/i2c device to Bus.
type devfsBus struct {
	dev *i2c.Device
}

func (b *devfsBus) Tx(w, r []byte) error {
	if len(w) > 0 {
		if err := b.dev.Write(w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		return b.dev.Read(r)
	}
	return nil
}

func (tcs *TCS34725) initialize(timing IntegrationTime, gain Gain) error {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()

	id, err := tcs.read8(TCS34725_REGISTER_ID)
	if err != nil {
		return err
	}
	if id != TCS34725_ID_VALUE {
		return fmt.Errorf("%w: id 0x%02x, want 0x%02x", ErrUnrecognizedDevice, id, TCS34725_ID_VALUE)
	}
	if err := tcs.write8(TCS34725_REGISTER_ATIME, byte(timing)); err != nil {
		return err
	}
	tcs.timing = timing
	if err := tcs.write8(TCS34725_REGISTER_CONTROL, byte(gain)); err != nil {
		return err
	}
	tcs.gain = gain

	// PON and AEN must go out as two writes, the ADC can't start until the
	// oscillator has settled.
	if err := tcs.write8(TCS34725_REGISTER_ENABLE, TCS34725_ENABLE_PON); err != nil {
		return err
	}
	tcs.enable = TCS34725_ENABLE_PON
	time.Sleep(powerOnDelay)
	if err := tcs.write8(TCS34725_REGISTER_ENABLE, TCS34725_ENABLE_PON|TCS34725_ENABLE_AEN); err != nil {
		return err
	}
	tcs.enable = TCS34725_ENABLE_PON | TCS34725_ENABLE_AEN
	return nil
}

// Enable powers the sensor back up after Disable. Other ENABLE bits, such as
// the interrupt enable, are left as they are.
func (tcs *TCS34725) Enable() error {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()

	if err := tcs.writeEnable(TCS34725_ENABLE_PON, true); err != nil {
		return err
	}
	time.Sleep(powerOnDelay)
	return tcs.writeEnable(TCS34725_ENABLE_AEN, true)
}

// Disable puts the sensor to sleep by clearing PON and AEN.
func (tcs *TCS34725) Disable() error {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()

	return tcs.writeEnable(TCS34725_ENABLE_PON|TCS34725_ENABLE_AEN, false)
}

// Enabled reports whether the last ENABLE value written had both PON and AEN.
func (tcs *TCS34725) Enabled() bool {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()
	return tcs.enabled()
}

func (tcs *TCS34725) enabled() bool {
	const on = TCS34725_ENABLE_PON | TCS34725_ENABLE_AEN
	return tcs.enable&on == on
}

// Set the integration timing for the sensor
func (tcs *TCS34725) SetIntegrationTime(timing IntegrationTime) error {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()

	if err := tcs.write8(TCS34725_REGISTER_ATIME, byte(timing)); err != nil {
		return err
	}
	tcs.timing = timing
	return nil
}

// Set the gain for the sensor
func (tcs *TCS34725) SetGain(gain Gain) error {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()

	if err := tcs.write8(TCS34725_REGISTER_CONTROL, byte(gain)); err != nil {
		return err
	}
	tcs.gain = gain
	return nil
}

func (tcs *TCS34725) IntegrationTime() IntegrationTime {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()
	return tcs.timing
}

func (tcs *TCS34725) Gain() Gain {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()
	return tcs.gain
}

// SetPersistence sets how many consecutive out of range cycles latch an
// interrupt.
func (tcs *TCS34725) SetPersistence(p Persistence) error {
	if p > TCS34725_PERS_60 {
		return fmt.Errorf("tcs34725: invalid persistence 0x%02x", byte(p))
	}
	tcs.mu.Lock()
	defer tcs.mu.Unlock()
	return tcs.write8(TCS34725_REGISTER_PERS, byte(p))
}

// Status returns the raw STATUS register.
func (tcs *TCS34725) Status() (byte, error) {
	tcs.mu.Lock()
	defer tcs.mu.Unlock()
	return tcs.read8(TCS34725_REGISTER_STATUS)
}

// DataReady reports whether an integration cycle has completed since the ADC
// was enabled.
func (tcs *TCS34725) DataReady() (bool, error) {
	status, err := tcs.Status()
	if err != nil {
		return false, err
	}
	return status&TCS34725_STATUS_AVALID != 0, nil
}

// InterruptLatched reports whether the chip is holding a threshold interrupt
// that has not been cleared yet.
func (tcs *TCS34725) InterruptLatched() (bool, error) {
	status, err := tcs.Status()
	if err != nil {
		return false, err
	}
	return status&TCS34725_STATUS_AINT != 0, nil
}

// SetLED turns the indicator LED on or off.
func (tcs *TCS34725) SetLED(on bool) error {
	if tcs.led == nil {
		return ErrNoLED
	}
	return tcs.led.Out(levelOf(on))
}

// Close disarms interrupts and releases the bus if the handle owns it.
func (tcs *TCS34725) Close() error {
	err := tcs.DisableInterrupt()
	if tcs.closer != nil {
		if cerr := tcs.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
