package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind tags the Command variant.
type Kind int

const (
	KindSet Kind = iota + 1
	KindCenter
	KindOff
	KindFetch
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindCenter:
		return "center"
	case KindOff:
		return "off"
	case KindFetch:
		return "fetch"
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is one operator request. Value is meaningful only for KindSet.
type Command struct {
	Kind  Kind
	Value float64
}

func (c Command) String() string {
	if c.Kind == KindSet {
		return strconv.FormatFloat(c.Value, 'f', -1, 64)
	}
	return c.Kind.String()
}

const Usage = "usage: center | off | fetch | status | <probability 0.0..1.0>"

// InputValidationError rejects an operator line. It never changes state.
type InputValidationError struct {
	Input  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid command %q: %s", e.Input, e.Reason)
}

// Parse turns one line of operator input into a Command.
func Parse(line string) (Command, error) {
	in := strings.TrimSpace(line)
	switch strings.ToLower(in) {
	case "":
		return Command{}, &InputValidationError{Input: in, Reason: "empty"}
	case "center":
		return Command{Kind: KindCenter}, nil
	case "off":
		return Command{Kind: KindOff}, nil
	case "fetch":
		return Command{Kind: KindFetch}, nil
	case "status":
		return Command{Kind: KindStatus}, nil
	}

	v, err := strconv.ParseFloat(in, 64)
	if err != nil {
		return Command{}, &InputValidationError{Input: in, Reason: "unrecognized"}
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return Command{}, &InputValidationError{Input: in, Reason: "value must be within 0.0..1.0"}
	}
	return Command{Kind: KindSet, Value: v}, nil
}

// Scan reads lines from r and calls fn for each non-blank line until EOF,
// a read error, or ctx is done. A trailing '\r' is stripped.
//
// Scan does not interrupt a blocked Read; close r to unblock it.
func Scan(ctx context.Context, r io.Reader, fn func(line string)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fn(line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("command: read: %w", err)
	}
	return ctx.Err()
}
