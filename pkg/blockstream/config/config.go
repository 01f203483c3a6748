package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/norasector/blockstream/pkg/blockstream/device"
)

type Config struct {
	Stream device.StreamConfig `yaml:"stream"`
	Pool   struct {
		InitialBlocks int `yaml:"initial_blocks"`
		ReserveBlocks int `yaml:"reserve_blocks"`
	} `yaml:"pool"`
	Tone struct {
		Frequency float64       `yaml:"frequency"`
		Amplitude int           `yaml:"amplitude"`
		Duration  time.Duration `yaml:"duration"`
	} `yaml:"tone"`
	// Device is one of null, pipe, wavfile or speaker.
	Device         string `yaml:"device"`
	Pacing         bool   `yaml:"pacing"`
	QueueDepth     int    `yaml:"queue_depth"`
	PipeWAVHeader  bool   `yaml:"pipe_wav_header"`
	RecordLocation string `yaml:"record_location"`
	MediaDir       string `yaml:"media_dir"`
	// PlaybackFile, relative to MediaDir, is probed at startup and played by "play" without
	// an argument.
	PlaybackFile  string `yaml:"playback_file"`
	Autoplay      bool   `yaml:"autoplay"`
	Shell         bool   `yaml:"shell"`
	ControlServer struct {
		Port           int           `yaml:"port"`
		UpdateInterval time.Duration `yaml:"update_interval"`
	} `yaml:"control_server"`
	Codec struct {
		Enabled bool   `yaml:"enabled"`
		Address uint16 `yaml:"address"`
	} `yaml:"codec"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Token        string `yaml:"token"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

// Default is a 44.1kHz stereo stream of 25ms blocks with a pool of 2+32 blocks, a
// 440Hz full scale tone and a paced null transmitter.
func Default() Config {
	var c Config
	c.Stream = device.DefaultStreamConfig()
	c.Pool.InitialBlocks = 2
	c.Pool.ReserveBlocks = 32
	c.Tone.Frequency = 440
	c.Tone.Amplitude = 32767
	c.Device = "null"
	c.Pacing = true
	c.QueueDepth = 4
	c.MediaDir = "."
	c.ControlServer.Port = 8080
	c.ControlServer.UpdateInterval = time.Second
	c.Codec.Address = 0x18
	return c
}

// PoolBlocks is the total number of blocks the pool holds.
func (c Config) PoolBlocks() int {
	return c.Pool.InitialBlocks + c.Pool.ReserveBlocks
}

func (c Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if c.PoolBlocks() <= 0 {
		return fmt.Errorf("pool must hold at least one block")
	}
	switch c.Device {
	case "null", "pipe", "speaker":
	case "wavfile":
		if c.RecordLocation == "" {
			return fmt.Errorf("wavfile device needs record_location")
		}
	default:
		return fmt.Errorf("unknown device %q", c.Device)
	}
	return nil
}

// Parse unmarshals contents over the defaults.
func Parse(contents []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(contents)
}
