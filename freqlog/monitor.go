package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/gofreqmeter/pkg/monitor"
	"github.com/itohio/gofreqmeter/pkg/output"
	"github.com/itohio/gofreqmeter/pkg/readout"
)

func monitorCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	portFlag := fs.String("p", "", "Serial port (e.g., COM3 or /dev/ttyACM0)")
	baudFlag := fs.Int("baud", readout.DefaultBaudRate, "Baud rate")
	mockFlag := fs.Bool("mock", false, "Use a mocked device instead of a serial port")
	listFlag := fs.Bool("list", false, "List serial ports and exit")
	statusFlag := fs.Bool("status", false, "Request the instrument status and exit")
	ackFlag := fs.String("ack", "", "Acknowledge an alarm and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *listFlag {
		ports, err := readout.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Fprintln(stdout, p.Name)
		}
		return nil
	}

	var dev readout.Device
	if *mockFlag {
		dev = readout.NewMock(output.New(), readout.DefaultPeriod)
	} else {
		if *portFlag == "" {
			return fmt.Errorf("no serial port given, use -p or -mock")
		}
		dev = readout.New(*portFlag, *baudFlag, 0)
	}
	if err := dev.Connect(); err != nil {
		return err
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *statusFlag:
		if err := dev.RequestStatus(); err != nil {
			return err
		}
		return printReply(ctx, dev, stdout)
	case *ackFlag != "":
		if err := dev.Acknowledge(monitor.Alarm(*ackFlag)); err != nil {
			return err
		}
		return printReply(ctx, dev, stdout)
	}
	return stream(ctx, dev, stdout)
}

// replyTimeout bounds the wait for a command reply.
const replyTimeout = 5 * time.Second

func printReply(ctx context.Context, dev readout.Device, w io.Writer) error {
	t := time.NewTimer(replyTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
		return fmt.Errorf("no reply within %v", replyTimeout)
	case r, ok := <-dev.Replies():
		if !ok {
			return fmt.Errorf("link closed")
		}
		_, err := fmt.Fprintln(w, r)
		return err
	}
}

// stream prints lines until ctx is done or the link closes.
func stream(ctx context.Context, dev readout.Device, w io.Writer) error {
	fmt.Fprintln(w, readout.Header)
	replies := dev.Replies()
	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-dev.Lines():
			if !ok {
				log.Printf("monitor: link closed")
				return nil
			}
			if _, err := fmt.Fprintln(w, l.Format()); err != nil {
				return err
			}
		case r, ok := <-replies:
			if !ok {
				replies = nil
				continue
			}
			log.Printf("monitor: %s", r)
		}
	}
}
