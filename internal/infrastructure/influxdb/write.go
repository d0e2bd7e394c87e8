package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues a point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point at ts, e.g. a flash's start rather
// than the moment it finished.
//
// Points are dropped and counted when the client is closed, the
// measurement is empty or there are no fields, since line protocol cannot
// carry a field-less point.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || measurement == "" || len(fields) == 0 {
		c.dropped.Add(1)
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, ts))
	c.written.Add(1)
}
