//go:build !linux

package display

import "fmt"

func openLine(chip string, offset int) (outputLine, error) {
	return nil, fmt.Errorf("display: gpio unsupported on this platform")
}

var openLineFn = openLine
