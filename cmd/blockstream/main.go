package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/blockstream/pkg/blockstream"
	"github.com/norasector/blockstream/pkg/blockstream/config"
	"github.com/norasector/blockstream/pkg/blockstream/device/dma"
	"github.com/norasector/blockstream/pkg/blockstream/device/pipe"
	"github.com/norasector/blockstream/pkg/blockstream/device/speaker"
	"github.com/norasector/blockstream/pkg/blockstream/device/wavfile"
	"github.com/norasector/blockstream/pkg/blockstream/pool"
	"github.com/norasector/blockstream/pkg/blockstream/source"
	"github.com/norasector/blockstream/pkg/codec"
	"github.com/norasector/blockstream/pkg/control"
	"github.com/norasector/blockstream/pkg/dsp/viz"
	"github.com/norasector/blockstream/pkg/dsp/window"
	"github.com/norasector/blockstream/pkg/metrics"
	"github.com/norasector/blockstream/pkg/storage"
)

const (
	waveformSamples = 2048
	spectrumSamples = 8192
	shutdownTimeout = 5 * time.Second
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "blockstream.yaml", "YAML config file")
	debug := flag.Bool("debug", false, "debug logging")

	flag.Parse()
	if *debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	cfg := config.Default()
	if _, err := os.Stat(*configFile); err == nil {
		if cfg, err = config.Load(*configFile); err != nil {
			log.Fatal().Err(err).Str("config", *configFile).Msg("error loading config file")
		}
	} else {
		log.Warn().Str("config", *configFile).Msg("config file not found, using defaults")
	}

	if cfg.Codec.Enabled {
		bus := codec.LogBus{Logger: log.Logger}
		if err := codec.Init(bus, cfg.Codec.Address, codec.AIC3120, codec.WithLogger(log.Logger)); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize codec")
		}
	}

	// The shell shares stdout with nothing but itself unless the stream is piped there.
	var shellOut io.Writer = os.Stdout

	var sink dma.Sink
	dmaOpts := []dma.Option{dma.WithQueueDepth(cfg.QueueDepth), dma.WithLogger(log.Logger)}
	switch cfg.Device {
	case "pipe":
		var pipeOpts []pipe.Option
		if cfg.PipeWAVHeader {
			pipeOpts = append(pipeOpts, pipe.WithWAVHeader())
		}
		sink = pipe.New(os.Stdout, pipeOpts...)
		shellOut = os.Stderr
	case "wavfile":
		sink = wavfile.New(cfg.RecordLocation)
	case "speaker":
		// the sound card keeps its own clock
		sink = speaker.New(speaker.WithLogger(log.Logger))
		dmaOpts = append(dmaOpts, dma.WithoutPacing())
	default:
		sink = dma.NullSink{}
	}
	if !cfg.Pacing {
		dmaOpts = append(dmaOpts, dma.WithoutPacing())
	}
	log.Info().Str("device", sink.Name()).Msg("initializing device...")
	transmitter := dma.New(sink, dmaOpts...)

	volume := storage.NewVolume()
	if err := volume.Mount(cfg.MediaDir); err != nil {
		log.Fatal().Err(err).Str("media_dir", cfg.MediaDir).Msg("failed to mount media volume")
	}
	if cfg.PlaybackFile != "" {
		probe(volume, cfg.PlaybackFile)
	}

	blocks, err := pool.New(cfg.PoolBlocks(), cfg.Stream.BlockSamples())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to allocate block pool")
	}

	gallery := viz.NewGallery(cfg.ControlServer.UpdateInterval)
	waveform := viz.NewTimeDomainPlotter("waveform", waveformSamples)
	spectrum := viz.NewSpectrumPlotter("spectrum", spectrumSamples, window.BlackmanHarris)
	gallery.Register(waveform)
	gallery.Register(spectrum)

	influxWriteAPI := metrics.NewWriteAPI(cfg.InfluxDB.Host, cfg.InfluxDB.Token, cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)
	defer influxWriteAPI.Flush()

	engine, err := blockstream.NewEngine(transmitter, blocks,
		blockstream.Options{
			Stream:        cfg.Stream,
			ToneAmplitude: cfg.Tone.Amplitude,
		},
		blockstream.WithInfluxDB(influxWriteAPI),
		blockstream.WithObserver(waveform),
		blockstream.WithObserver(spectrum),
		blockstream.OnSessionEnd(func(st blockstream.Status) {
			ev := log.Info()
			if st.Err != nil {
				ev = log.Error().Err(st.Err)
			}
			ev.Str("session", st.ID.String()).
				Str("reason", st.Reason.String()).
				Int64("completed", transmitter.Completed()).
				Int64("underruns", transmitter.Underruns()).
				Msg("playback ended")
		}),
		blockstream.WithLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	player := control.NewEnginePlayer(ctx, engine, volume,
		control.WithToneDefaults(cfg.Tone.Frequency, cfg.Tone.Duration),
		control.WithDefaultFile(cfg.PlaybackFile))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
			log.Info().Msg("shutting down")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return engine.Shutdown(shutdownCtx)
	})

	server := control.NewServer(cfg.ControlServer.Port, player,
		control.WithGallery(gallery),
		control.WithLogger(log.Logger))
	eg.Go(func() error {
		return server.Run(ctx)
	})

	if cfg.Shell {
		shell := control.NewShell(player, os.Stdin, shellOut)
		eg.Go(func() error {
			return shell.Run(ctx)
		})
	}

	if cfg.Autoplay {
		var err error
		if cfg.PlaybackFile != "" {
			_, err = player.StartFile("")
		} else {
			_, err = player.StartTone(0, 0)
		}
		if err != nil {
			log.Error().Err(err).Msg("autoplay failed")
		}
	}

	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("exited program")
	}
}

// probe logs the container header of name so a bad playback file shows up at startup
// rather than on the first play.
func probe(volume *storage.Volume, name string) {
	r, err := volume.Open(name)
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("playback file not found")
		return
	}
	f, err := source.OpenFile(name, r)
	if err != nil {
		r.Close()
		log.Warn().Err(err).Str("file", name).Msg("playback file is not playable")
		return
	}
	defer f.Close()
	log.Info().Str("file", name).Str("header", f.Header().String()).Msg("playback file")
}
