package telemetry

import (
	"sync"
	"time"

	"github.com/itohio/gofreqmeter/pkg/monitor"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Alarms contains every published alarm.
	Alarms []monitor.Event

	// Pages contains every published page notice.
	Pages []PageEvent

	// Payloads contains the JSON payloads in publication order.
	Payloads [][]byte

	// PublishError, if set, is returned by every publish call.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

var _ Publisher = (*FakePublisher)(nil)

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishAlarm(ts time.Time, e monitor.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatAlarm(ts, e)
	if err != nil {
		return err
	}
	f.Alarms = append(f.Alarms, e)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) PublishPage(p PageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPage(p)
	if err != nil {
		return err
	}
	f.Pages = append(f.Pages, p)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
