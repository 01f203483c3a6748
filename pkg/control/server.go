package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/blockstream/pkg/blockstream"
	"github.com/norasector/blockstream/pkg/dsp/viz"
	"github.com/norasector/blockstream/pkg/storage"
	"github.com/norasector/blockstream/pkg/wav"
)

const stopTimeout = 5 * time.Second

type Server struct {
	player  Player
	gallery *viz.Gallery
	srv     *http.Server
	logger  zerolog.Logger
}

type ServerOption func(s *Server)

func WithGallery(g *viz.Gallery) ServerOption {
	return func(s *Server) {
		s.gallery = g
	}
}

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(port int, player Player, opts ...ServerOption) *Server {
	s := &Server{
		player: player,
		srv:    &http.Server{Addr: fmt.Sprintf(":%d", port)},
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv.Handler = s.Handler()
	return s
}

// startRequest is the body of POST /playback/start. An empty body starts the default
// tone.
type startRequest struct {
	Source    string  `json:"source"`
	Frequency float64 `json:"frequency"`
	Duration  string  `json:"duration"`
	Name      string  `json:"name"`
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()

	handler.GET("/playback", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, s.player.Status())
	})

	handler.POST("/playback/start", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req startRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
				return
			}
		}

		var (
			out Outcome
			err error
		)
		switch req.Source {
		case "", "tone":
			var d time.Duration
			if req.Duration != "" {
				if d, err = time.ParseDuration(req.Duration); err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
			}
			out, err = s.player.StartTone(req.Frequency, d)
		case "file":
			out, err = s.player.StartFile(req.Name)
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown source %q", req.Source))
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("source", req.Source).Msg("start failed")
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	handler.POST("/playback/stop", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
		defer cancel()
		out, err := s.player.Stop(ctx)
		if err != nil {
			writeError(w, http.StatusGatewayTimeout, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	handler.GET("/files", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		entries, err := s.player.List(r.URL.Query().Get("dir"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	if s.gallery != nil {
		handler.GET("/viz", s.gallery.HandleIndex)
		handler.GET("/viz/:name", s.gallery.HandleImage)
	}

	return handler
}

// statusFor separates failures of the transmit path from bad files.
func statusFor(err error) int {
	switch {
	case errors.Is(err, blockstream.ErrConfig):
		return http.StatusBadGateway
	case errors.Is(err, wav.ErrFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrNotMounted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Run serves until ctx is done, refreshing the gallery alongside.
func (s *Server) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	if s.gallery != nil {
		eg.Go(func() error {
			return s.gallery.Run(ctx)
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("control server listening")
		err := s.srv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	return eg.Wait()
}
