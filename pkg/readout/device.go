package readout

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/itohio/gofreqmeter/pkg/monitor"
)

// DefaultBufferSize is the default size of the line and reply channels.
const DefaultBufferSize = 100

// Device is the host side of the read-out link (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Lines() <-chan Line
	Replies() <-chan string
	Acknowledge(a monitor.Alarm) error
	RequestStatus() error
	IsConnected() bool
}

var (
	_ Device = (*Serial)(nil)
	_ Device = (*Mock)(nil)
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// link reads lines from a connection and dispatches them: data lines go to
// lines, everything else except comments goes to replies.
type link struct {
	lines   chan Line
	replies chan string

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	closed    bool
}

func (l *link) init(bufSize int) {
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	l.lines = make(chan Line, bufSize)
	l.replies = make(chan string, bufSize)
	l.ctx, l.cancel = context.WithCancel(context.Background())
}

// attach starts reading conn. mu must be held.
func (l *link) attach(conn io.ReadWriteCloser) {
	l.conn = conn
	l.connected = true
	go l.read(conn)
}

func (l *link) checkConnect() error {
	if l.closed {
		return fmt.Errorf("device closed")
	}
	if l.connected {
		return fmt.Errorf("already connected")
	}
	return nil
}

// Close stops reading and closes the connection. The line and reply
// channels are closed once the reader exits.
func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return nil
	}
	l.cancel()
	if err := l.conn.Close(); err != nil {
		log.Printf("readout: error closing link: %v", err)
	}
	l.conn = nil
	l.connected = false
	l.closed = true
	return nil
}

// Lines returns the channel of streamed snapshots.
func (l *link) Lines() <-chan Line { return l.lines }

// Replies returns the channel of command replies.
func (l *link) Replies() <-chan string { return l.replies }

// IsConnected returns whether the device is currently connected.
func (l *link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Acknowledge clears a sticky alarm on the instrument.
func (l *link) Acknowledge(a monitor.Alarm) error {
	return l.send(CmdAcknowledge + " " + string(a))
}

// RequestStatus asks for a status reply.
func (l *link) RequestStatus() error {
	return l.send(CmdStatus)
}

func (l *link) send(cmd string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.connected {
		return fmt.Errorf("not connected")
	}
	if _, err := io.WriteString(l.conn, cmd+"\n"); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}

func (l *link) read(r io.Reader) {
	defer close(l.lines)
	defer close(l.replies)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		if l.ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		switch {
		case text == "" || strings.HasPrefix(text, "#"):
			continue
		case text[0] >= '0' && text[0] <= '9':
			line, err := ParseLine(text)
			if err != nil {
				log.Printf("readout: failed to parse line '%s': %v", text, err)
				continue
			}
			select {
			case l.lines <- line:
			case <-l.ctx.Done():
				return
			default:
				log.Printf("readout: lines channel full, dropping line")
			}
		default:
			select {
			case l.replies <- text:
			case <-l.ctx.Done():
				return
			default:
				log.Printf("readout: replies channel full, dropping reply")
			}
		}
	}
	if err := scanner.Err(); err != nil && l.ctx.Err() == nil {
		log.Printf("readout: error reading link: %v", err)
	}
}

// Serial is a connection to the instrument console over a serial port.
type Serial struct {
	link
	port     string
	baudRate int
}

// New creates a Serial device for port. Zero values select the defaults.
func New(port string, baudRate, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	d := &Serial{port: port, baudRate: baudRate}
	d.init(bufSize)
	return d
}

// Connect opens the serial port and starts reading lines.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkConnect(); err != nil {
		return err
	}
	conn, err := OpenPort(d.port, d.baudRate)
	if err != nil {
		return err
	}
	d.attach(conn)
	return nil
}
