// Package display mirrors meter state to human-facing outputs.
//
// Every Sink is write-only: nothing a sink observes feeds back into the
// meter. Sinks are called from the control loop and must not block for long.
package display

import (
	"errors"
	"fmt"
	"log"
)

type State string

const (
	StateConnecting State = "connecting"
	StateFetching   State = "fetching"
	StateOK         State = "ok"
	StateError      State = "error"
	StateManual     State = "manual"
	StateOff        State = "off"
)

// Status is what the meter is currently showing and why.
type Status struct {
	State           State   `json:"state"`
	Title           string  `json:"title,omitempty"`
	Probability     float64 `json:"probability"`
	HaveProbability bool    `json:"have_probability"`
	Duty            int     `json:"duty"`
	Volume          *int    `json:"volume,omitempty"`
	Err             string  `json:"error,omitempty"`
}

// Lit reports whether the status LED should be on.
func (s Status) Lit() bool {
	return s.State == StateOK || s.State == StateManual
}

type Sink interface {
	Show(st Status)
	Close() error
}

// Multi fans out to every sink in order.
type Multi []Sink

func (m Multi) Show(st Status) {
	for _, s := range m {
		s.Show(st)
	}
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes one line per distinct status.
type Log struct {
	last    Status
	started bool
	logf    func(format string, args ...any)
}

func NewLog() *Log { return &Log{logf: log.Printf} }

func (l *Log) Show(st Status) {
	if l.started && sameStatus(l.last, st) {
		return
	}
	l.started = true
	l.last = st
	l.logf("display: %s", describe(st))
}

func (l *Log) Close() error { return nil }

func sameStatus(a, b Status) bool {
	if (a.Volume == nil) != (b.Volume == nil) {
		return false
	}
	if a.Volume != nil && *a.Volume != *b.Volume {
		return false
	}
	a.Volume, b.Volume = nil, nil
	return a == b
}

func describe(st Status) string {
	s := fmt.Sprintf("state=%s duty=%d", st.State, st.Duty)
	if st.HaveProbability {
		s += fmt.Sprintf(" p=%.3f", st.Probability)
	}
	if st.Title != "" {
		s += fmt.Sprintf(" title=%q", st.Title)
	}
	if st.Volume != nil {
		s += fmt.Sprintf(" volume=%d", *st.Volume)
	}
	if st.Err != "" {
		s += " err=" + st.Err
	}
	return s
}
