package sensor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestConfigForChannelBytes(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		cfg      ADCConfig
		msb, lsb byte
		wantErr  bool
	}{
		{"channel0@128", 128, ADCConfig{Width: 10, Attenuation: Atten11dB, Channel: 0}, 0xC3, 0x83, false},
		{"channel1@128", 128, ADCConfig{Width: 10, Attenuation: Atten11dB, Channel: 1}, 0xD3, 0x83, false},
		{"channel0@8", 8, ADCConfig{Width: 10, Attenuation: Atten11dB, Channel: 0}, 0xC3, 0x03, false},
		{"channel0@128 0db", 128, ADCConfig{Width: 10, Attenuation: Atten0dB, Channel: 0}, 0xC5, 0x83, false},
		{"invalid channel", 128, ADCConfig{Width: 10, Channel: 9}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &ADS1115{sampleRate: tt.rate}
			msb, lsb, err := s.configForChannel(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.msb, msb, "msb %02X", msb)
			assert.Equal(t, tt.lsb, lsb, "lsb %02X", lsb)
		})
	}
}

func TestPGAFor(t *testing.T) {
	assert.Equal(t, byte(2), pgaFor(Atten0dB))
	assert.Equal(t, byte(2), pgaFor(Atten2_5dB))
	assert.Equal(t, byte(1), pgaFor(Atten6dB))
	assert.Equal(t, byte(1), pgaFor(Atten11dB))
}

func TestADS1115ReadRaw(t *testing.T) {
	conv := func(hi, lo byte) []i2ctest.IO {
		return []i2ctest.IO{
			{Addr: 0x48, W: []byte{pointerConfig, 0xC3, 0xE3}},
			{Addr: 0x48, W: []byte{pointerConv}, R: []byte{hi, lo}},
		}
	}
	var ops []i2ctest.IO
	ops = append(ops, conv(0x40, 0x00)...)
	ops = append(ops, conv(0x7F, 0xFF)...)
	ops = append(ops, conv(0xFF, 0x00)...)
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}

	s := newADS1115(bus, 0x48, 860)
	cfg := ADCConfig{Width: 10, Attenuation: Atten11dB, Channel: 0}
	require.NoError(t, s.Configure(cfg))

	ctx := context.Background()
	for _, want := range []int{512, 1023, 0} {
		got, err := s.ReadRaw(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 4096, s.Millivolts(1023))
	assert.NoError(t, s.Close())
}

func TestADS1115Errors(t *testing.T) {
	s := newADS1115(&i2ctest.Playback{DontPanic: true}, 0x48, 860)
	_, err := s.ReadRaw(context.Background())
	assert.Error(t, err, "read before configure")

	assert.Error(t, s.Configure(ADCConfig{Width: 16, Channel: 0}))
	require.NoError(t, s.Configure(ADCConfig{Width: 12, Channel: 0}))
	_, err = s.ReadRaw(context.Background())
	assert.Error(t, err, "empty playback must fail the transaction")
}
