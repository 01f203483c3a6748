package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/norasector/blockstream/pkg/blockstream"
	"github.com/norasector/blockstream/pkg/wav"
)

const shellPrompt = "blockstream:~$ "

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, sh *Shell, args []string) error
}

var commands = map[string]command{
	"start_tone": {"start_tone [frequency] [duration]", "Start sine wave tone", cmdStartTone},
	"stop_tone":  {"stop_tone", "Stop sine wave tone", cmdStop},
	"play":       {"play [file]", "Play a WAVE file from the media volume", cmdPlay},
	"stop":       {"stop", "Stop playback", cmdStop},
	"ls":         {"ls [dir]", "List the media volume", cmdList},
	"status":     {"status", "Show playback status", cmdStatus},
}

// Shell reads one command per line and prints results, the way a serial console does.
type Shell struct {
	player Player
	in     io.Reader
	out    io.Writer
	prompt bool
}

func NewShell(player Player, in io.Reader, out io.Writer) *Shell {
	return &Shell{player: player, in: in, out: out, prompt: true}
}

// WithoutPrompt disables the prompt, for scripted input.
func (sh *Shell) WithoutPrompt() *Shell {
	sh.prompt = false
	return sh
}

func (sh *Shell) printf(format string, args ...interface{}) {
	fmt.Fprintf(sh.out, format+"\n", args...)
}

// Run executes commands until the input ends or ctx is done.
func (sh *Shell) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(sh.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		if sh.prompt {
			fmt.Fprint(sh.out, shellPrompt)
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			sh.Exec(ctx, line)
		}
	}
}

// Exec runs one command line.
func (sh *Shell) Exec(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if fields[0] == "help" {
		sh.help()
		return
	}
	cmd, ok := commands[fields[0]]
	if !ok {
		sh.printf("%s: command not found", fields[0])
		return
	}
	if err := cmd.run(ctx, sh, fields[1:]); err != nil {
		sh.printf("%s", describe(err))
	}
}

// describe keeps transmit path failures and bad files apart.
func describe(err error) string {
	switch {
	case errors.Is(err, blockstream.ErrConfig):
		return fmt.Sprintf("Failed to configure I2S stream: %v", err)
	case errors.Is(err, wav.ErrFormat):
		return fmt.Sprintf("Not a playable WAVE file: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

func cmdStartTone(ctx context.Context, sh *Shell, args []string) error {
	var (
		frequency float64
		duration  time.Duration
		err       error
	)
	if len(args) > 0 {
		if frequency, err = strconv.ParseFloat(args[0], 64); err != nil {
			return fmt.Errorf("bad frequency %q", args[0])
		}
	}
	if len(args) > 1 {
		if duration, err = time.ParseDuration(args[1]); err != nil {
			return fmt.Errorf("bad duration %q", args[1])
		}
	}
	out, err := sh.player.StartTone(frequency, duration)
	if err != nil {
		return err
	}
	if !out.Changed {
		sh.printf("Tone already started")
		return nil
	}
	sh.printf("Starting tone...")
	return nil
}

func cmdPlay(ctx context.Context, sh *Shell, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	out, err := sh.player.StartFile(name)
	if err != nil {
		return err
	}
	if !out.Changed {
		sh.printf("Already playing")
		return nil
	}
	sh.printf("Playing %s...", out.Status.Session.Source)
	return nil
}

func cmdStop(ctx context.Context, sh *Shell, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	out, err := sh.player.Stop(ctx)
	if err != nil {
		return err
	}
	if !out.Changed {
		sh.printf("Tone not started")
		return nil
	}
	sh.printf("Stopping tone...")
	return nil
}

func cmdList(ctx context.Context, sh *Shell, args []string) error {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}
	entries, err := sh.player.List(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		sh.printf("%s", e)
	}
	return nil
}

func cmdStatus(ctx context.Context, sh *Shell, args []string) error {
	st := sh.player.Status()
	state := "stopped"
	if st.Playing {
		state = "playing"
	}
	sh.printf("%s, transmitter %s, %d/%d blocks in use", state, st.Trigger, st.PoolOutstanding, st.PoolCapacity)
	if s := st.Session; s != nil {
		sh.printf("session %s: %s, %d blocks, %s", s.ID, s.Source, s.Blocks, s.Duration.Round(time.Millisecond))
		if s.Reason != blockstream.ReasonNone {
			sh.printf("ended: %s", s.Reason)
		}
	}
	if st.Error != "" {
		sh.printf("error: %s", st.Error)
	}
	return nil
}

func (sh *Shell) help() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sh.printf("  %-36s %s", commands[name].usage, commands[name].help)
	}
	sh.printf("  %-36s %s", "help", "List commands")
}
