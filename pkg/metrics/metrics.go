// Package metrics holds the InfluxDB plumbing shared by the engine and its transmitters.
package metrics

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/influxdata/influxdb-client-go/api/write"
)

const (
	MeasurementBlock   = "blockstream_block"
	MeasurementSession = "blockstream_session"
)

// NewWriteAPI returns an asynchronous writer for host, or a NopWriteAPI when host is
// empty.
func NewWriteAPI(host, token, organization, bucket string) api.WriteAPI {
	if host == "" {
		return &NopWriteAPI{}
	}
	return influxdb2.NewClient(host, token).WriteAPI(organization, bucket)
}

// Point is influxdb2.NewPoint stamped with the current time.
func Point(measurement string, tags map[string]string, fields map[string]interface{}) *write.Point {
	return influxdb2.NewPoint(measurement, tags, fields, time.Now())
}

func TimeOperationMicroseconds(op func()) int64 {
	start := time.Now()
	op()
	return time.Since(start).Microseconds()
}
