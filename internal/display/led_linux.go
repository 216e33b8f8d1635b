//go:build linux

package display

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// openLine requests one GPIO line as an output, initially low, through the
// Linux GPIO character device.
func openLine(chip string, offset int) (outputLine, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("probmeter-led"))
	if err != nil {
		return nil, fmt.Errorf("display: request %s line %d: %w", chip, offset, err)
	}
	return line, nil
}

var openLineFn = openLine
