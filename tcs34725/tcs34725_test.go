package tcs34725

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestRead16BigEndian(t *testing.T) {
	bus := newFakeBus()
	tcs := newTestSensor(t, bus, nil)

	for hi := 0; hi < 256; hi++ {
		for lo := 0; lo < 256; lo++ {
			bus.set(TCS34725_REGISTER_CDATAL, byte(hi), byte(lo))
			got, err := tcs.read16(TCS34725_REGISTER_CDATAL)
			require.NoError(t, err)
			if got != uint16(hi)<<8|uint16(lo) {
				t.Fatalf("read16(%#02x, %#02x) = %#04x", hi, lo, got)
			}
		}
	}
}

func TestCommandBitOnEveryAccess(t *testing.T) {
	bus := newFakeBus()
	tcs, err := New(bus, nil)
	require.NoError(t, err)
	_, err = tcs.ReadSample()
	require.NoError(t, err)
	require.NoError(t, tcs.Disable())

	for _, w := range bus.transactions() {
		assert.Equal(t, TCS34725_COMMAND_BIT, w[0]&TCS34725_COMMAND_BIT, "txn % x", w)
	}
}

func TestNewEnableSequence(t *testing.T) {
	bus := newFakeBus()
	tcs, err := New(bus, &Opts{
		IntegrationTime: TCS34725_INTEGRATIONTIME_24MS,
		Gain:            TCS34725_GAIN_16X,
	})
	require.NoError(t, err)

	assert.Equal(t, [][]byte{
		{0x81, 0xF6},
		{0x8F, 0x02},
		{0x80, 0x01},
		{0x80, 0x03},
	}, bus.written())
	assert.Equal(t, []byte{0x92}, bus.transactions()[0], "identity read comes first")
	assert.True(t, tcs.Enabled())
	assert.Equal(t, TCS34725_INTEGRATIONTIME_24MS, tcs.IntegrationTime())
	assert.Equal(t, TCS34725_GAIN_16X, tcs.Gain())
}

func TestNewDefaults(t *testing.T) {
	bus := newFakeBus()
	_, err := New(bus, nil)
	require.NoError(t, err)

	w := bus.written()
	require.Len(t, w, 4)
	assert.Equal(t, []byte{0x81, byte(TCS34725_INTEGRATIONTIME_2_4MS)}, w[0])
	assert.Equal(t, []byte{0x8F, byte(TCS34725_GAIN_1X)}, w[1])
}

func TestNewIdentityMismatch(t *testing.T) {
	for _, id := range []byte{0x00, 0x4D, 0x50, 0xFF} {
		bus := newFakeBus()
		bus.set(TCS34725_REGISTER_ID, id)

		tcs, err := New(bus, nil)
		assert.Nil(t, tcs)
		assert.ErrorIs(t, err, ErrUnrecognizedDevice)
		assert.Empty(t, bus.written(), "id 0x%02x", id)
	}
}

func TestNewStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("nack")
	bus := newFakeBus()
	bus.fail(TCS34725_REGISTER_CONTROL, boom)

	tcs, err := New(bus, nil)
	assert.Nil(t, tcs)
	require.ErrorIs(t, err, boom)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "write", terr.Op)
	assert.Equal(t, TCS34725_REGISTER_CONTROL, terr.Reg)

	// ATIME went out, nothing after CONTROL did.
	assert.Equal(t, [][]byte{{0x81, 0xFF}}, bus.written())
	assert.Len(t, bus.transactions(), 3)
}

func TestNewI2C(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x29, W: []byte{0x92}, R: []byte{0x44}},
			{Addr: 0x29, W: []byte{0x81, 0xFF}},
			{Addr: 0x29, W: []byte{0x8F, 0x00}},
			{Addr: 0x29, W: []byte{0x80, 0x01}},
			{Addr: 0x29, W: []byte{0x80, 0x03}},
		},
	}
	tcs, err := NewI2C(bus, nil)
	require.NoError(t, err)
	assert.True(t, tcs.Enabled())
	require.NoError(t, bus.Close())
}

func TestDisable(t *testing.T) {
	bus := newFakeBus()
	tcs := newTestSensor(t, bus, nil)

	// Set AIEN behind the driver's back, Disable must read the register
	// rather than trust its own copy.
	bus.set(TCS34725_REGISTER_ENABLE, 0x13)
	require.NoError(t, tcs.Disable())

	assert.Equal(t, [][]byte{{0x80}}, bus.transactions()[:1])
	assert.Equal(t, [][]byte{{0x80, 0x10}}, bus.written())
	assert.False(t, tcs.Enabled())

	_, err := tcs.ReadSample()
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestEnableAfterDisable(t *testing.T) {
	bus := newFakeBus()
	tcs := newTestSensor(t, bus, nil)
	require.NoError(t, tcs.Disable())
	bus.set(TCS34725_REGISTER_ENABLE, 0x10)
	bus.reset()

	require.NoError(t, tcs.Enable())
	assert.Equal(t, [][]byte{{0x80, 0x11}, {0x80, 0x13}}, bus.written())
	assert.True(t, tcs.Enabled())
}

func TestSetGainAndIntegrationTime(t *testing.T) {
	bus := newFakeBus()
	tcs := newTestSensor(t, bus, nil)

	require.NoError(t, tcs.SetGain(TCS34725_GAIN_60X))
	require.NoError(t, tcs.SetIntegrationTime(TCS34725_INTEGRATIONTIME_700MS))
	assert.Equal(t, [][]byte{{0x8F, 0x03}, {0x81, 0x00}}, bus.written())
	assert.Equal(t, TCS34725_GAIN_60X, tcs.Gain())
	assert.Equal(t, TCS34725_INTEGRATIONTIME_700MS, tcs.IntegrationTime())
}

func TestSetPersistence(t *testing.T) {
	bus := newFakeBus()
	tcs := newTestSensor(t, bus, nil)

	require.NoError(t, tcs.SetPersistence(TCS34725_PERS_5))
	assert.Equal(t, [][]byte{{0x8C, 0x04}}, bus.written())
	assert.Error(t, tcs.SetPersistence(Persistence(0x10)))
}

func TestDataReady(t *testing.T) {
	bus := newFakeBus()
	tcs := newTestSensor(t, bus, nil)

	bus.set(TCS34725_REGISTER_STATUS, 0x00)
	ready, err := tcs.DataReady()
	require.NoError(t, err)
	assert.False(t, ready)

	bus.set(TCS34725_REGISTER_STATUS, TCS34725_STATUS_AVALID|TCS34725_STATUS_AINT)
	ready, err = tcs.DataReady()
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestInterruptLatched(t *testing.T) {
	bus := newFakeBus()
	tcs := newTestSensor(t, bus, nil)

	bus.set(TCS34725_REGISTER_STATUS, TCS34725_STATUS_AVALID)
	latched, err := tcs.InterruptLatched()
	require.NoError(t, err)
	assert.False(t, latched)

	bus.set(TCS34725_REGISTER_STATUS, TCS34725_STATUS_AVALID|TCS34725_STATUS_AINT)
	latched, err = tcs.InterruptLatched()
	require.NoError(t, err)
	assert.True(t, latched)

	boom := errors.New("nack")
	bus.fail(TCS34725_REGISTER_STATUS, boom)
	_, err = tcs.InterruptLatched()
	assert.ErrorIs(t, err, boom)
}

func TestReadSampleGateUsesWrittenEnable(t *testing.T) {
	bus := newFakeBus()
	tcs := newTestSensor(t, bus, nil)
	require.NoError(t, tcs.Disable())

	// Powered up behind the handle's back, the handle still treats it as off.
	bus.set(TCS34725_REGISTER_ENABLE, TCS34725_ENABLE_PON|TCS34725_ENABLE_AEN)
	_, err := tcs.ReadSample()
	assert.ErrorIs(t, err, ErrDisabled)

	require.NoError(t, tcs.Enable())
	_, err = tcs.ReadSample()
	assert.NoError(t, err)
}

func TestNewTCS34725MissingDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "i2c-9")
	tcs, err := NewTCS34725(TCS34725_GAIN_4X, TCS34725_INTEGRATIONTIME_154MS, path)
	assert.Nil(t, tcs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestSetLED(t *testing.T) {
	led := &fakeLED{}
	tcs := newTestSensor(t, newFakeBus(), &Opts{LED: led})

	require.NoError(t, tcs.SetLED(true))
	require.NoError(t, tcs.SetLED(false))
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, led.levels)

	noLED := newTestSensor(t, newFakeBus(), nil)
	assert.ErrorIs(t, noLED.SetLED(true), ErrNoLED)
}
