package readout

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/monitor"
	"github.com/itohio/gofreqmeter/pkg/output"
)

func TestConsoleHandle(t *testing.T) {
	var acked []monitor.Alarm
	ack := func(a monitor.Alarm) error {
		if a == "bogus" {
			return errors.New("unknown alarm bogus")
		}
		acked = append(acked, a)
		return nil
	}
	status := func() (*Status, error) {
		return BuildStatus(config.NewStore(config.Default(), 0), nil, nil)
	}

	tests := []struct {
		name      string
		cmd       string
		handlers  bool
		want      string
		prefix    string
		wantAcked []monitor.Alarm
	}{
		{name: "ack", cmd: "ack low_voltage", handlers: true, want: ReplyOK, wantAcked: []monitor.Alarm{monitor.LowVoltage}},
		{name: "ack error", cmd: "ack bogus", handlers: true, want: "error: unknown alarm bogus"},
		{name: "ack usage", cmd: "ack", handlers: true, want: "error: usage: ack <alarm>"},
		{name: "ack unavailable", cmd: "ack low_voltage", want: "error: alarms unavailable"},
		{name: "status", cmd: "status", handlers: true, prefix: `{"settings":`},
		{name: "status unavailable", cmd: "status", want: "error: status unavailable"},
		{name: "unknown", cmd: "reboot now", handlers: true, want: "error: unknown command reboot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acked = nil
			c := NewConsole(nil, output.New(), 0)
			if tt.handlers {
				c.OnAcknowledge(ack)
				c.OnStatus(status)
			}
			got := c.handle(tt.cmd)
			if tt.prefix != "" {
				assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			} else {
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.wantAcked, acked)
		})
	}
}

func TestConsoleRun(t *testing.T) {
	host, remote := net.Pipe()
	defer host.Close()

	out := output.New()
	out.Update(func(s *output.Snapshot) { *s = testSnapshot() })
	c := NewConsole(remote, out, 5*time.Millisecond)
	c.now = func() time.Time { return time.UnixMilli(42) }
	c.OnAcknowledge(func(monitor.Alarm) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	r := bufio.NewReader(host)
	first, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "# "+Header+"\n", first)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "42,50,26.5,32100,32768,,3.7\n", line)

	go func() { _, _ = host.Write([]byte("ack over_pressure\n")) }()
	// the reply is interleaved with streamed lines
	for {
		s, err := r.ReadString('\n')
		require.NoError(t, err)
		if s == ReplyOK+"\n" {
			break
		}
		require.NotContains(t, s, ReplyError)
	}

	cancel()
	// drain until the console stops writing
	go func() {
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not stop")
	}
	remote.Close()
}

func TestConsoleRunWriteError(t *testing.T) {
	host, remote := net.Pipe()
	host.Close()

	c := NewConsole(remote, output.New(), time.Millisecond)
	err := c.Run(context.Background())
	assert.Error(t, err)
	remote.Close()
}
