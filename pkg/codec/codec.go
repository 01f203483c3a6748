// Package codec brings up an audio codec by writing an ordered register sequence over a
// control bus.
package codec

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultAddress is the AIC3120's 7 bit bus address.
const DefaultAddress uint16 = 0x18

// Bus writes one register of the device at addr.
type Bus interface {
	WriteRegister(addr uint16, reg, value byte) error
}

type Write struct {
	Reg   byte
	Value byte
	Note  string
}

type Sequence []Write

// pageSelect is register 0 on every page of the AIC31xx family.
const pageSelect = 0

// AIC3120 brings a TLV320AIC3120 up as an I2S slave clocked from MCLK, playing the DAC
// into both the headphone and class-D outputs.
var AIC3120 = Sequence{
	{pageSelect, 0x00, "page 0"},
	{1, 0x01, "software reset"},

	{4, 0x03, "PLL_clkin = MCLK"},
	{6, 0x08, "J = 8"},
	{7, 0x00, "D(13:8) = 0"},
	{8, 0x00, "D(7:0) = 0"},
	{5, 0x91, "PLL power up, P = 1, R = 1"},
	{11, 0x88, "NDAC power up"},
	{12, 0x82, "MDAC power up"},
	{13, 0x00, "DOSR(9:8) = 0"},
	{14, 0x80, "DOSR(7:0) = 128"},
	{27, 0x00, "I2S, 16 bit word, slave"},
	{60, 0x10, "DAC processing block PRB_P16"},
	{pageSelect, 0x08, "page 8"},
	{1, 0x04, "adaptive filtering"},
	{pageSelect, 0x80, "page 128"},

	{pageSelect, 0x01, "page 1"},
	{31, 0x04, "common mode voltage"},
	{33, 0x4e, "headphone depop"},
	{35, 0x40, "route DAC to HPOUT"},
	{40, 0x06, "HPOUT unmute, 0 dB"},
	{42, 0x1c, "class-D unmute, 18 dB"},
	{31, 0x82, "HPOUT power up"},
	{32, 0xc6, "class-D power up"},
	{36, 0x92, "HPOUT analog volume"},
	{38, 0x92, "class-D analog volume"},

	{pageSelect, 0x00, "page 0"},
	{63, 0x94, "DAC channels power up"},
	{65, 0xd4, "DAC gain -22 dB"},
	{64, 0x04, "DAC unmute"},
}

type options struct {
	logger zerolog.Logger
}

type Option func(o *options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Init writes seq to the device at addr in order and stops at the first failed write.
func Init(bus Bus, addr uint16, seq Sequence, opts ...Option) error {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("codec", fmt.Sprintf("0x%02x", addr)).Logger()

	for i, w := range seq {
		if err := bus.WriteRegister(addr, w.Reg, w.Value); err != nil {
			return fmt.Errorf("write %d of %d, register 0x%02x (%s): %w", i+1, len(seq), w.Reg, w.Note, err)
		}
		logger.Debug().Msgf("wrote 0x%02x to register 0x%02x", w.Value, w.Reg)
	}
	logger.Info().Int("writes", len(seq)).Msg("codec initialized")
	return nil
}

// LogBus stands in for a control bus on hosts without one; it logs every write.
type LogBus struct {
	Logger zerolog.Logger
}

func (b LogBus) WriteRegister(addr uint16, reg, value byte) error {
	b.Logger.Trace().
		Uint16("addr", addr).
		Uint8("reg", reg).
		Uint8("value", value).
		Msg("register write")
	return nil
}
