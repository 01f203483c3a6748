package viz

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Gallery re-renders its producers while somebody is looking at them and serves the
// latest image of each.
type Gallery struct {
	mu             sync.RWMutex
	producers      map[string]Producer
	images         map[string]*ImageContainer
	updateInterval time.Duration
	lastViewed     time.Time
	enabled        bool
	logger         zerolog.Logger
}

func NewGallery(updateInterval time.Duration) *Gallery {
	if updateInterval <= 0 {
		updateInterval = time.Second
	}
	return &Gallery{
		producers:      make(map[string]Producer),
		images:         make(map[string]*ImageContainer),
		updateInterval: updateInterval,
		enabled:        true,
		logger:         log.Logger,
	}
}

func (g *Gallery) Enable(enable bool) {
	g.mu.Lock()
	g.enabled = enable
	g.mu.Unlock()
}

func (g *Gallery) Register(p Producer) {
	g.mu.Lock()
	g.producers[p.Name()] = p
	g.mu.Unlock()
}

func (g *Gallery) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.producers))
	for name := range g.producers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refresh renders every producer that has enough data.
func (g *Gallery) Refresh() {
	g.mu.RLock()
	producers := make([]Producer, 0, len(g.producers))
	for _, p := range g.producers {
		producers = append(producers, p)
	}
	g.mu.RUnlock()

	var wg sync.WaitGroup
	for _, producer := range producers {
		wg.Add(1)
		go func(p Producer) {
			defer wg.Done()

			img, err := p.GetImage()
			if err != nil {
				g.logger.Trace().Err(err).Str("plot", p.Name()).Msg("skipping plot")
				return
			}
			g.mu.Lock()
			g.images[img.Name] = img
			g.mu.Unlock()
		}(producer)
	}
	wg.Wait()
}

// Image returns the latest rendering of name.
func (g *Gallery) Image(name string) ([]byte, bool) {
	g.mu.Lock()
	g.lastViewed = time.Now()
	img, ok := g.images[name]
	g.mu.Unlock()
	if !ok {
		return nil, false
	}
	return img.Data, true
}

// Run refreshes on every update interval while the gallery was viewed within the last
// second, until ctx is done.
func (g *Gallery) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.mu.RLock()
			active := g.enabled && time.Since(g.lastViewed) < time.Second+g.updateInterval
			g.mu.RUnlock()
			if active {
				g.Refresh()
			}
		}
	}
}

func (g *Gallery) HandleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	g.mu.Lock()
	g.lastViewed = time.Now()
	interval := g.updateInterval
	g.mu.Unlock()

	names := g.Names()

	w.Header().Add("Content-Type", "text/html")
	w.Write([]byte(`<html><head><title>Blockstream Viz</title></head>`))
	w.Write([]byte(fmt.Sprintf(`
		<script type="text/javascript">
			window.onload = function() {
				for (var i = 0; i < %d; i++) {
					var img = document.getElementById('graph-' + i);
					setInterval(function(image) {
						image.src = image.src.split("?")[0] + "?" + new Date().getTime();
					}, %d, img);
				}
			}
		</script>`, len(names), interval.Milliseconds())))
	w.Write([]byte(`<body style='background-color: black'>`))
	w.Write([]byte(`<div style="display: flex; flex-direction: row; flex-wrap: wrap">`))
	for idx, name := range names {
		w.Write([]byte(fmt.Sprintf(`<div><img id="graph-%d" src="/viz/%s?%d" /></div>`, idx, name, time.Now().UnixMicro())))
	}
	w.Write([]byte(`</div></body></html>`))
}

func (g *Gallery) HandleImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	data, ok := g.Image(params.ByName("name"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Add("Content-Type", "image/png")
	w.Write(data)
}
