package readout

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/gofreqmeter/pkg/monitor"
	"github.com/itohio/gofreqmeter/pkg/output"
)

const (
	// DefaultBaudRate is the console link speed.
	DefaultBaudRate = 115200
	// DefaultPeriod is the interval between streamed lines.
	DefaultPeriod = time.Second
)

// Console commands, one per line.
const (
	CmdStatus      = "status"
	CmdAcknowledge = "ack"
)

// Replies to console commands.
const (
	ReplyOK    = "ok"
	ReplyError = "error:"
)

// OpenPort opens a serial port for the instrument console.
func OpenPort(name string, baudRate int) (serial.Port, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return port, nil
}

// Console is the instrument side of the link: it streams the live snapshot
// and serves commands.
type Console struct {
	rw     io.ReadWriter
	out    *output.Output
	period time.Duration
	now    func() time.Time

	wmu sync.Mutex

	hmu    sync.RWMutex
	status func() (*Status, error)
	ack    func(monitor.Alarm) error
}

// NewConsole creates a console on rw. A zero period selects DefaultPeriod.
func NewConsole(rw io.ReadWriter, out *output.Output, period time.Duration) *Console {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Console{rw: rw, out: out, period: period, now: time.Now}
}

// OnStatus sets the provider answering the status command.
func (c *Console) OnStatus(fn func() (*Status, error)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.status = fn
}

// OnAcknowledge sets the handler of the ack command.
func (c *Console) OnAcknowledge(fn func(monitor.Alarm) error) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.ack = fn
}

// Run streams lines until ctx is done or the link fails. The caller owns
// rw and closes it to stop the command reader.
func (c *Console) Run(ctx context.Context) error {
	go c.readCommands(ctx)

	if err := c.writeLine("# " + Header); err != nil {
		return err
	}

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			line := FromSnapshot(c.now(), c.out.Snapshot())
			if err := c.writeLine(line.Format()); err != nil {
				return err
			}
		}
	}
}

func (c *Console) writeLine(s string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := io.WriteString(c.rw, s+"\n"); err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}

func (c *Console) readCommands(ctx context.Context) {
	scanner := bufio.NewScanner(c.rw)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		if err := c.writeLine(c.handle(cmd)); err != nil {
			log.Printf("console: %v", err)
			return
		}
	}
}

// handle executes one command and returns the reply line.
func (c *Console) handle(cmd string) string {
	c.hmu.RLock()
	status, ack := c.status, c.ack
	c.hmu.RUnlock()

	fields := strings.Fields(cmd)
	switch fields[0] {
	case CmdStatus:
		if status == nil {
			return ReplyError + " status unavailable"
		}
		st, err := status()
		if err != nil {
			return ReplyError + " " + err.Error()
		}
		data, err := st.JSON()
		if err != nil {
			return ReplyError + " " + err.Error()
		}
		return string(data)
	case CmdAcknowledge:
		if len(fields) != 2 {
			return ReplyError + " usage: ack <alarm>"
		}
		if ack == nil {
			return ReplyError + " alarms unavailable"
		}
		if err := ack(monitor.Alarm(fields[1])); err != nil {
			return ReplyError + " " + err.Error()
		}
		return ReplyOK
	}
	return ReplyError + " unknown command " + fields[0]
}
