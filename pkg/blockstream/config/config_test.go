package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.PoolBlocks() != 34 {
		t.Errorf("PoolBlocks() = %d, want 34", c.PoolBlocks())
	}
	if c.Stream.BlockSize != 4408 || c.Stream.BlockFrames() != 1102 {
		t.Errorf("stream = %+v", c.Stream)
	}
	if c.Stream.Timeout != 2*time.Second {
		t.Errorf("timeout = %s", c.Stream.Timeout)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name: "empty keeps defaults",
			yaml: "",
			check: func(t *testing.T, c Config) {
				if c.Device != "null" || c.Tone.Frequency != 440 {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name: "overrides",
			yaml: `
stream:
  frame_rate: 48000
  block_size: 4800
  timeout: 500ms
tone:
  frequency: 1000
  duration: 3s
device: wavfile
record_location: /tmp/out.wav
codec:
  enabled: true
influxdb:
  host: http://localhost:8086
`,
			check: func(t *testing.T, c Config) {
				if c.Stream.FrameRate != 48000 || c.Stream.BlockSize != 4800 || c.Stream.Channels != 2 {
					t.Errorf("stream = %+v", c.Stream)
				}
				if c.Stream.Timeout != 500*time.Millisecond {
					t.Errorf("timeout = %s", c.Stream.Timeout)
				}
				if c.Tone.Frequency != 1000 || c.Tone.Duration != 3*time.Second {
					t.Errorf("tone = %+v", c.Tone)
				}
				if !c.Codec.Enabled || c.Codec.Address != 0x18 {
					t.Errorf("codec = %+v", c.Codec)
				}
				if c.InfluxDB.Host != "http://localhost:8086" {
					t.Errorf("influxdb = %+v", c.InfluxDB)
				}
			},
		},
		{name: "unknown device", yaml: "device: hackrf", wantErr: true},
		{name: "wavfile without location", yaml: "device: wavfile", wantErr: true},
		{name: "24 bit", yaml: "stream:\n  word_size: 24", wantErr: true},
		{name: "empty pool", yaml: "pool:\n  initial_blocks: 0\n  reserve_blocks: 0", wantErr: true},
		{name: "bad yaml", yaml: "stream: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blockstream.yaml")
	if err := os.WriteFile(path, []byte("device: pipe\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Device != "pipe" {
		t.Errorf("Device = %q", c.Device)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}
