package tcs34725

import (
	"fmt"
	"strings"
	"time"
)

const (
	TCS34725_ADDR        uint16 = 0x29 ///< Fixed I2C address
	TCS34725_ID_VALUE    byte   = 0x44 ///< Value of the ID register for a TCS34725
	TCS34725_COMMAND_BIT byte   = 0x80 ///< Set on every register address byte

	TCS34725_ENABLE_PON  byte = 0x01 ///< Power on. Activates the internal oscillator.
	TCS34725_ENABLE_AEN  byte = 0x02 ///< RGBC enable. Activates the two-channel ADC.
	TCS34725_ENABLE_AIEN byte = 0x10 ///< RGBC interrupt enable

	TCS34725_STATUS_AVALID byte = 0x01 ///< RGBC integration cycle has completed
	TCS34725_STATUS_AINT   byte = 0x10 ///< RGBC clear channel interrupt latched

	TCS34725_CMD_CLEAR_INTERRUPT byte = 0x66 ///< Special function: clear the RGBC interrupt latch
)

// TCS34725 Register map
const (
	TCS34725_REGISTER_ENABLE  byte = 0x00 // Enable register
	TCS34725_REGISTER_ATIME   byte = 0x01 // RGBC integration time
	TCS34725_REGISTER_AILTL   byte = 0x04 // Clear channel low threshold lower byte
	TCS34725_REGISTER_AILTH   byte = 0x05 // Clear channel low threshold upper byte
	TCS34725_REGISTER_AIHTL   byte = 0x06 // Clear channel high threshold lower byte
	TCS34725_REGISTER_AIHTH   byte = 0x07 // Clear channel high threshold upper byte
	TCS34725_REGISTER_PERS    byte = 0x0C // Interrupt persistence filter
	TCS34725_REGISTER_CONTROL byte = 0x0F // Gain control
	TCS34725_REGISTER_ID      byte = 0x12 // Device identification
	TCS34725_REGISTER_STATUS  byte = 0x13 // Device status
	TCS34725_REGISTER_CDATAL  byte = 0x14 // Clear channel data
	TCS34725_REGISTER_RDATAL  byte = 0x16 // Red channel data
	TCS34725_REGISTER_GDATAL  byte = 0x18 // Green channel data
	TCS34725_REGISTER_BDATAL  byte = 0x1A // Blue channel data
)

// IntegrationTime is the ATIME register value. Each step below 0xFF adds one
// 2.4ms integration cycle.
type IntegrationTime byte

// Constants for adjusting the sensor integration timing
const (
	TCS34725_INTEGRATIONTIME_2_4MS IntegrationTime = 0xFF // 2.4ms - 1 cycle - Max Count: 1024
	TCS34725_INTEGRATIONTIME_24MS  IntegrationTime = 0xF6 // 24ms - 10 cycles - Max Count: 10240
	TCS34725_INTEGRATIONTIME_50MS  IntegrationTime = 0xEB // 50ms - 21 cycles - Max Count: 21504
	TCS34725_INTEGRATIONTIME_101MS IntegrationTime = 0xD5 // 101ms - 43 cycles - Max Count: 44032
	TCS34725_INTEGRATIONTIME_154MS IntegrationTime = 0xC0 // 154ms - 64 cycles - Max Count: 65535
	TCS34725_INTEGRATIONTIME_700MS IntegrationTime = 0x00 // 700ms - 256 cycles - Max Count: 65535
)

// Gain is the CONTROL register value.
type Gain byte

// Constants for adjusting the sensor gain
const (
	TCS34725_GAIN_1X  Gain = 0x00 // no gain
	TCS34725_GAIN_4X  Gain = 0x01 // 4x gain
	TCS34725_GAIN_16X Gain = 0x02 // 16x gain
	TCS34725_GAIN_60X Gain = 0x03 // 60x gain
)

// Persistence is the PERS register value: how many consecutive out of range
// integration cycles are needed before the interrupt latches.
type Persistence byte

const (
	TCS34725_PERS_EVERY Persistence = 0x00 // Every RGBC cycle generates an interrupt
	TCS34725_PERS_1     Persistence = 0x01 // 1 clear channel value outside of threshold range
	TCS34725_PERS_2     Persistence = 0x02
	TCS34725_PERS_3     Persistence = 0x03
	TCS34725_PERS_5     Persistence = 0x04
	TCS34725_PERS_10    Persistence = 0x05
	TCS34725_PERS_15    Persistence = 0x06
	TCS34725_PERS_20    Persistence = 0x07
	TCS34725_PERS_25    Persistence = 0x08
	TCS34725_PERS_30    Persistence = 0x09
	TCS34725_PERS_35    Persistence = 0x0A
	TCS34725_PERS_40    Persistence = 0x0B
	TCS34725_PERS_45    Persistence = 0x0C
	TCS34725_PERS_50    Persistence = 0x0D
	TCS34725_PERS_55    Persistence = 0x0E
	TCS34725_PERS_60    Persistence = 0x0F
)

var integrationTimes = []struct {
	value    IntegrationTime
	name     string
	duration time.Duration
}{
	{TCS34725_INTEGRATIONTIME_2_4MS, "2.4ms", 2400 * time.Microsecond},
	{TCS34725_INTEGRATIONTIME_24MS, "24ms", 24 * time.Millisecond},
	{TCS34725_INTEGRATIONTIME_50MS, "50ms", 50 * time.Millisecond},
	{TCS34725_INTEGRATIONTIME_101MS, "101ms", 101 * time.Millisecond},
	{TCS34725_INTEGRATIONTIME_154MS, "154ms", 154 * time.Millisecond},
	{TCS34725_INTEGRATIONTIME_700MS, "700ms", 700 * time.Millisecond},
}

var gains = []struct {
	value      Gain
	name       string
	multiplier float64
}{
	{TCS34725_GAIN_1X, "1x", 1},
	{TCS34725_GAIN_4X, "4x", 4},
	{TCS34725_GAIN_16X, "16x", 16},
	{TCS34725_GAIN_60X, "60x", 60},
}

func (t IntegrationTime) String() string {
	for _, it := range integrationTimes {
		if it.value == t {
			return it.name
		}
	}
	return "Unknown"
}

// Duration of one integration cycle at this setting. Values outside the table
// are computed from the cycle count.
func (t IntegrationTime) Duration() time.Duration {
	for _, it := range integrationTimes {
		if it.value == t {
			return it.duration
		}
	}
	return time.Duration(256-int(t)) * 2400 * time.Microsecond
}

// MaxCount is the highest count any channel can reach at this setting.
func (t IntegrationTime) MaxCount() uint16 {
	count := (256 - int(t)) * 1024
	if count > 0xFFFF {
		return 0xFFFF
	}
	return uint16(count)
}

func (g Gain) String() string {
	for _, gn := range gains {
		if gn.value == g {
			return gn.name
		}
	}
	return "Unknown"
}

// Multiplier returns the analog gain factor, or 0 for an unknown value.
func (g Gain) Multiplier() float64 {
	for _, gn := range gains {
		if gn.value == g {
			return gn.multiplier
		}
	}
	return 0
}

// ParseIntegrationTime maps a name such as "24ms" to its register value.
func ParseIntegrationTime(s string) (IntegrationTime, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, it := range integrationTimes {
		if it.name == s {
			return it.value, nil
		}
	}
	return 0, fmt.Errorf("tcs34725: unknown integration time %q", s)
}

// ParseGain maps a name such as "16x" to its register value.
func ParseGain(s string) (Gain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, gn := range gains {
		if gn.name == s {
			return gn.value, nil
		}
	}
	return 0, fmt.Errorf("tcs34725: unknown gain %q", s)
}
