// Package console accepts operator commands over a serial line or stdin.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"go.bug.st/serial"

	"probmeter/internal/command"
	"probmeter/internal/controller"
)

type Config struct {
	// Port is a serial device such as /dev/ttyUSB0. Empty disables serial.
	Port string
	Baud int
	// Stdin reads commands from the process's stdin and answers on stdout.
	Stdin bool
}

type Dispatcher interface {
	Dispatch(ctx context.Context, line string) (controller.Result, error)
}

var openSerialFn = func(port string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(port, &serial.Mode{BaudRate: baud})
}

type stdio struct {
	io.Reader
	io.Writer
}

// Open returns the configured command channel, or nil when none is enabled.
func Open(cfg Config) (io.ReadWriteCloser, error) {
	if cfg.Port != "" {
		if cfg.Baud <= 0 {
			cfg.Baud = 115200
		}
		p, err := openSerialFn(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, fmt.Errorf("console: open %s: %w", cfg.Port, err)
		}
		return p, nil
	}
	if cfg.Stdin {
		return nopCloser{stdio{Reader: os.Stdin, Writer: os.Stdout}}, nil
	}
	return nil, nil
}

type nopCloser struct{ io.ReadWriter }

func (nopCloser) Close() error { return nil }

// Serve answers one reply line per command line until EOF or ctx is done.
// The channel is closed when ctx is done so a blocked read returns.
func Serve(ctx context.Context, rw io.ReadWriteCloser, d Dispatcher) error {
	stop := context.AfterFunc(ctx, func() { _ = rw.Close() })
	defer stop()

	_, _ = io.WriteString(rw, command.Usage+"\r\n")
	err := command.Scan(ctx, rw, func(line string) {
		res, err := d.Dispatch(ctx, line)
		if _, werr := io.WriteString(rw, FormatReply(res, err)+"\r\n"); werr != nil {
			log.Printf("console: write reply: %v", werr)
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// FormatReply renders a command result for a terminal.
func FormatReply(res controller.Result, err error) string {
	var verr *command.InputValidationError
	if errors.As(err, &verr) {
		return "error: " + verr.Error() + "\r\n" + command.Usage
	}

	var b strings.Builder
	if err != nil {
		fmt.Fprintf(&b, "error: %v\r\n", err)
	} else {
		b.WriteString("ok ")
	}
	fmt.Fprintf(&b, "%s state=%s duty=%d", res.Command, res.State, res.Duty)
	if res.HaveProbability {
		fmt.Fprintf(&b, " p=%.3f", res.Probability)
	}
	return b.String()
}
