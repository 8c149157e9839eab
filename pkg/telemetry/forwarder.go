package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/itohio/gofreqmeter/pkg/monitor"
)

// DefaultQueueSize is the number of events buffered while publishing is slow.
const DefaultQueueSize = 32

type queued struct {
	ts    time.Time
	alarm *monitor.Event
	page  *PageEvent
}

// Forwarder decouples the instrument tasks from the broker: events are
// queued without blocking and published by Run.
type Forwarder struct {
	pub   Publisher
	queue chan queued
	now   func() time.Time
}

// NewForwarder creates a forwarder in front of pub. A zero size selects DefaultQueueSize.
func NewForwarder(pub Publisher, size int) *Forwarder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Forwarder{pub: pub, queue: make(chan queued, size), now: time.Now}
}

// Alarm queues an alarm rise. Suitable as a monitor.Alarms OnRise callback.
func (f *Forwarder) Alarm(e monitor.Event) {
	f.enqueue(queued{ts: f.now(), alarm: &e})
}

// Page queues a page-written notice.
func (f *Forwarder) Page(p PageEvent) {
	if p.Timestamp.IsZero() {
		p.Timestamp = f.now()
	}
	f.enqueue(queued{ts: p.Timestamp, page: &p})
}

func (f *Forwarder) enqueue(q queued) {
	select {
	case f.queue <- q:
	default:
		log.Printf("telemetry: queue full, dropping event")
	}
}

// Run publishes queued events until ctx is done. Publish errors are logged.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-f.queue:
			var err error
			if q.alarm != nil {
				err = f.pub.PublishAlarm(q.ts, *q.alarm)
			} else {
				err = f.pub.PublishPage(*q.page)
			}
			if err != nil {
				log.Printf("telemetry: %v", err)
			}
		}
	}
}
