// Package telemetry publishes instrument events to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/itohio/gofreqmeter/pkg/monitor"
)

// TopicAlarm receives every confirmed alarm rise.
const TopicAlarm = "freqlog/alarm"

// TopicPage receives a notice for every written data page.
const TopicPage = "freqlog/page"

// Publisher publishes instrument events.
type Publisher interface {
	// PublishAlarm sends a confirmed alarm. Failures must not stop the instrument.
	PublishAlarm(ts time.Time, e monitor.Event) error

	// PublishPage sends a page-written notice.
	PublishPage(p PageEvent) error

	// Close disconnects from the broker.
	Close() error
}

// PageEvent describes a written data page.
type PageEvent struct {
	Timestamp time.Time
	ID        uint32
	Index     int
	Used      int
	Total     int
}

type alarmPayload struct {
	Timestamp string        `json:"timestamp"`
	Alarm     monitor.Event `json:"alarm"`
}

type pagePayload struct {
	Timestamp string `json:"timestamp"`
	ID        uint32 `json:"id"`
	Index     int    `json:"index"`
	Used      int    `json:"used_pages"`
	Total     int    `json:"total_pages"`
}

// FormatAlarm creates the JSON payload of an alarm rise.
func FormatAlarm(ts time.Time, e monitor.Event) ([]byte, error) {
	return json.Marshal(alarmPayload{
		Timestamp: ts.UTC().Format(time.RFC3339),
		Alarm:     e,
	})
}

// FormatPage creates the JSON payload of a page-written notice.
func FormatPage(p PageEvent) ([]byte, error) {
	return json.Marshal(pagePayload{
		Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
		ID:        p.ID,
		Index:     p.Index,
		Used:      p.Used,
		Total:     p.Total,
	})
}
