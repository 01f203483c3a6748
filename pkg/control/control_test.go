package control

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/norasector/blockstream/pkg/blockstream"
	"github.com/norasector/blockstream/pkg/blockstream/device"
	"github.com/norasector/blockstream/pkg/blockstream/device/dma"
	"github.com/norasector/blockstream/pkg/blockstream/pool"
	"github.com/norasector/blockstream/pkg/storage"
	"github.com/norasector/blockstream/pkg/wav"
)

// refusingTransmitter fails every Configure, like an I2S peripheral that will not clock.
type refusingTransmitter struct{}

func (refusingTransmitter) Configure(device.StreamConfig) error {
	return errors.New("i2s clock not available")
}
func (refusingTransmitter) Submit(context.Context, *pool.Block) error { return nil }
func (refusingTransmitter) Trigger(device.Command) error              { return nil }

func writeWAV(t *testing.T, path string, frames int) {
	t.Helper()
	var buf bytes.Buffer
	if err := wav.Encode(&buf, 2, 44100, 16, uint32(frames*4)); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, make([]int16, frames*2)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestPlayer(t *testing.T, tx device.Transmitter) *EnginePlayer {
	t.Helper()
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "short.wav"), 4410)
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	vol := storage.NewVolume()
	if err := vol.Mount(root); err != nil {
		t.Fatal(err)
	}

	cfg := device.DefaultStreamConfig()
	p, err := pool.New(34, cfg.BlockSamples())
	if err != nil {
		t.Fatal(err)
	}
	e, err := blockstream.NewEngine(tx, p, blockstream.Options{Stream: cfg}, blockstream.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		e.Shutdown(context.Background())
	})
	return NewEnginePlayer(ctx, e, vol, WithToneDefaults(440, 0), WithDefaultFile("short.wav"))
}

func pacedTransmitter() device.Transmitter {
	return dma.New(dma.NullSink{}, dma.WithLogger(zerolog.Nop()))
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
	}
	return rec, out
}

func TestStartStopIsIdempotent(t *testing.T) {
	h := NewServer(0, newTestPlayer(t, pacedTransmitter()), WithLogger(zerolog.Nop())).Handler()

	steps := []struct {
		method, path, body string
		wantChanged        bool
		wantPlaying        bool
	}{
		{http.MethodPost, "/playback/stop", "", false, false},
		{http.MethodPost, "/playback/start", `{"source":"tone","frequency":1000}`, true, true},
		{http.MethodPost, "/playback/start", `{"source":"tone","frequency":500}`, false, true},
		{http.MethodPost, "/playback/start", `{"source":"file","name":"short.wav"}`, false, true},
		{http.MethodPost, "/playback/stop", "", true, false},
		{http.MethodPost, "/playback/stop", "", false, false},
	}
	for i, st := range steps {
		rec, out := do(t, h, st.method, st.path, st.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("step %d: %s %s = %d %s", i, st.method, st.path, rec.Code, rec.Body)
		}
		if out["changed"] != st.wantChanged {
			t.Errorf("step %d: changed = %v, want %v", i, out["changed"], st.wantChanged)
		}
		status := out["status"].(map[string]interface{})
		if status["playing"] != st.wantPlaying {
			t.Errorf("step %d: playing = %v, want %v", i, status["playing"], st.wantPlaying)
		}
	}

	rec, out := do(t, h, http.MethodGet, "/playback", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /playback = %d", rec.Code)
	}
	session := out["session"].(map[string]interface{})
	if session["reason"] != "stopped" || session["source"] != "tone 1000Hz" {
		t.Errorf("session = %v", session)
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name       string
		tx         device.Transmitter
		body       string
		wantStatus int
	}{
		{"config failure", refusingTransmitter{}, `{"source":"tone"}`, http.StatusBadGateway},
		{"format failure", pacedTransmitter(), `{"source":"file","name":"notes.txt"}`, http.StatusUnprocessableEntity},
		{"missing file", pacedTransmitter(), `{"source":"file","name":"nope.wav"}`, http.StatusNotFound},
		{"bad frequency", pacedTransmitter(), `{"source":"tone","frequency":30000}`, http.StatusBadRequest},
		{"bad duration", pacedTransmitter(), `{"duration":"soon"}`, http.StatusBadRequest},
		{"unknown source", pacedTransmitter(), `{"source":"radio"}`, http.StatusBadRequest},
		{"bad json", pacedTransmitter(), `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := newTestPlayer(t, tt.tx)
			h := NewServer(0, player, WithLogger(zerolog.Nop())).Handler()
			rec, out := do(t, h, http.MethodPost, "/playback/start", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if msg, _ := out["error"].(string); msg == "" {
				t.Error("no error message")
			}
			if player.Status().Playing {
				t.Error("a failed start left something playing")
			}
		})
	}
}

func TestFilePlaysToCompletion(t *testing.T) {
	player := newTestPlayer(t, pacedTransmitter())
	out, err := player.StartFile("")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Changed || out.Status.Session.Source != "short.wav" {
		t.Fatalf("outcome = %+v", out)
	}

	deadline := time.Now().Add(5 * time.Second)
	for player.Status().Playing {
		if time.Now().After(deadline) {
			t.Fatal("100ms file still playing")
		}
		time.Sleep(10 * time.Millisecond)
	}
	st := player.Status()
	if st.Session.Reason != blockstream.ReasonExhausted || st.Session.Blocks != 5 {
		t.Errorf("session = %+v", st.Session)
	}
	if st.PoolOutstanding != 0 {
		t.Errorf("%d blocks still outstanding", st.PoolOutstanding)
	}
}

func TestListFiles(t *testing.T) {
	h := NewServer(0, newTestPlayer(t, pacedTransmitter()), WithLogger(zerolog.Nop())).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /files = %d", rec.Code)
	}
	var entries []storage.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "notes.txt" || entries[1].Name != "short.wav" {
		t.Errorf("entries = %+v", entries)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files?dir=missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /files?dir=missing = %d", rec.Code)
	}
}

func TestShell(t *testing.T) {
	player := newTestPlayer(t, pacedTransmitter())
	var out bytes.Buffer
	sh := NewShell(player, strings.NewReader(""), &out).WithoutPrompt()
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"stop_tone", "Tone not started"},
		{"start_tone", "Starting tone..."},
		{"start_tone", "Tone already started"},
		{"status", "playing, transmitter"},
		{"play short.wav", "Already playing"},
		{"stop_tone", "Stopping tone..."},
		{"ls", "[FILE] short.wav (size = 17684)"},
		{"play notes.txt", "Not a playable WAVE file"},
		{"start_tone abc", "bad frequency"},
		{"reboot", "reboot: command not found"},
		{"help", "start_tone [frequency] [duration]"},
	}
	for _, tt := range tests {
		out.Reset()
		sh.Exec(ctx, tt.line)
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("%q printed %q, want %q", tt.line, out.String(), tt.want)
		}
	}
}

func TestShellConfigFailure(t *testing.T) {
	var out bytes.Buffer
	sh := NewShell(newTestPlayer(t, refusingTransmitter{}), strings.NewReader(""), &out)
	sh.Exec(context.Background(), "start_tone")
	if !strings.Contains(out.String(), "Failed to configure I2S stream") {
		t.Errorf("printed %q", out.String())
	}
}

func TestShellRunReadsUntilEOF(t *testing.T) {
	player := newTestPlayer(t, pacedTransmitter())
	var out bytes.Buffer
	sh := NewShell(player, strings.NewReader("start_tone 1000\nstatus\nstop_tone\n"), &out).WithoutPrompt()

	if err := sh.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Starting tone...", "playing", "Stopping tone..."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q lacks %q", out.String(), want)
		}
	}
	if player.Status().Playing {
		t.Error("tone still playing after stop_tone")
	}
}
