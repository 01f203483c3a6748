package metrics

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// NopWriteAPI discards every point. It is the default writer when no InfluxDB host is
// configured.
type NopWriteAPI struct{}

func (m *NopWriteAPI) WriteRecord(line string)       {}
func (m *NopWriteAPI) WritePoint(point *write.Point) {}
func (m *NopWriteAPI) Flush()                        {}
func (m *NopWriteAPI) Close()                        {}
func (m *NopWriteAPI) Errors() <-chan error          { return nil }

// RecordingWriteAPI keeps every point in memory.
type RecordingWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
}

func (r *RecordingWriteAPI) WriteRecord(line string) {}

func (r *RecordingWriteAPI) WritePoint(point *write.Point) {
	r.mu.Lock()
	r.points = append(r.points, point)
	r.mu.Unlock()
}

func (r *RecordingWriteAPI) Flush()               {}
func (r *RecordingWriteAPI) Close()               {}
func (r *RecordingWriteAPI) Errors() <-chan error { return nil }

// Points returns the recorded points with the given measurement name, or all of them
// when name is empty.
func (r *RecordingWriteAPI) Points(name string) []*write.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*write.Point
	for _, p := range r.points {
		if name == "" || p.Name() == name {
			out = append(out, p)
		}
	}
	return out
}
