package readout

import (
	"net"
	"time"

	"github.com/itohio/gofreqmeter/pkg/output"
)

// Mock is an in-process device: a Console serving out is connected to the
// host reader over a pipe.
type Mock struct {
	link
	console *Console
}

// NewMock creates a mocked device streaming out every period.
func NewMock(out *output.Output, period time.Duration) *Mock {
	m := &Mock{}
	m.init(0)
	m.console = NewConsole(nil, out, period)
	return m
}

// Console returns the instrument side, e.g. to install command handlers.
func (m *Mock) Console() *Console { return m.console }

// Connect starts the console and the reader.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnect(); err != nil {
		return err
	}

	host, remote := net.Pipe()
	m.console.rw = remote
	go func() {
		_ = m.console.Run(m.ctx)
		remote.Close()
	}()
	m.attach(host)
	return nil
}
