// Package controller runs the meter's control loop.
//
// The loop goroutine is the only writer to the actuator. Polls run inline
// and stall the loop for at most the fetch timeout; operator commands queue
// on a channel until the loop picks them up.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"probmeter/internal/command"
	"probmeter/internal/display"
	"probmeter/internal/meter"
	"probmeter/internal/source"
)

type Fetcher interface {
	Fetch(ctx context.Context) (source.Reading, error)
}

type Reconnector interface {
	Reconnect(ctx context.Context) error
}

type Config struct {
	// PollInterval is the time between automatic fetches, measured from the
	// previous attempt.
	PollInterval time.Duration
	// LoopDelay is how often the loop wakes to check the poll schedule.
	LoopDelay time.Duration
	// ReconnectTimeout bounds one network re-association attempt.
	ReconnectTimeout time.Duration
}

// Result is the outcome of one command.
type Result struct {
	Command         string        `json:"command"`
	State           display.State `json:"state"`
	Duty            int           `json:"duty"`
	Probability     float64       `json:"probability"`
	HaveProbability bool          `json:"have_probability"`
}

type request struct {
	cmd   command.Command
	reply chan reply
}

type reply struct {
	res Result
	err error
}

// schedule is the loop's private timing state.
type schedule struct {
	lastPoll time.Time
	polled   bool
}

func (s *schedule) due(now time.Time, every time.Duration) bool {
	return !s.polled || now.Sub(s.lastPoll) >= every
}

func (s *schedule) reset(now time.Time) {
	s.lastPoll = now
	s.polled = true
}

type Controller struct {
	cfg   Config
	drv   *meter.Driver
	fetch Fetcher
	net   Reconnector
	sink  display.Sink

	reqs chan request
	now  func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg Config, drv *meter.Driver, fetch Fetcher, net Reconnector, sink display.Sink) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.LoopDelay <= 0 {
		cfg.LoopDelay = 100 * time.Millisecond
	}
	if cfg.ReconnectTimeout <= 0 {
		cfg.ReconnectTimeout = 30 * time.Second
	}
	if sink == nil {
		sink = display.Multi(nil)
	}
	cal := drv.Calibration()
	return &Controller{
		cfg:   cfg,
		drv:   drv,
		fetch: fetch,
		net:   net,
		sink:  sink,
		reqs:  make(chan request),
		now:   time.Now,
		snap: Snapshot{
			Status:       display.Status{State: display.StateConnecting},
			PollInterval: cfg.PollInterval.String(),
			Calibration: CalibrationInfo{
				CenterDuty:  cal.CenterDuty,
				MaxDuty:     cal.MaxDuty,
				DutyRange:   cal.DutyRange,
				CenterLevel: meter.DutyFor(cal.CenterDuty, cal),
				MaxLevel:    meter.DutyFor(cal.MaxDuty, cal),
			},
		},
	}
}

// Run drives the loop until ctx is done. The first poll happens immediately.
func (c *Controller) Run(ctx context.Context) error {
	sched := &schedule{}
	c.sink.Show(c.Snapshot().Status)

	t := time.NewTicker(c.cfg.LoopDelay)
	defer t.Stop()

	for {
		if sched.due(c.now(), c.cfg.PollInterval) {
			_ = c.poll(ctx, sched)
		}
		select {
		case <-ctx.Done():
			return nil
		case req := <-c.reqs:
			res, err := c.handle(ctx, sched, req.cmd)
			req.reply <- reply{res: res, err: err}
		case <-t.C:
		}
	}
}

// Submit hands cmd to the loop and waits for its result.
func (c *Controller) Submit(ctx context.Context, cmd command.Command) (Result, error) {
	req := request{cmd: cmd, reply: make(chan reply, 1)}
	select {
	case c.reqs <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Dispatch parses one operator line and submits it. Rejected lines return a
// *command.InputValidationError and never reach the actuator.
func (c *Controller) Dispatch(ctx context.Context, line string) (Result, error) {
	cmd, err := command.Parse(line)
	if err != nil {
		c.update(func(s *Snapshot) { s.CommandsRejected++ })
		log.Printf("controller: %v", err)
		return Result{}, err
	}
	return c.Submit(ctx, cmd)
}

func (c *Controller) handle(ctx context.Context, sched *schedule, cmd command.Command) (Result, error) {
	c.update(func(s *Snapshot) { s.Commands++ })

	var err error
	switch cmd.Kind {
	case command.KindCenter:
		c.applyManual(0.5)
	case command.KindSet:
		c.applyManual(cmd.Value)
	case command.KindOff:
		c.drv.Off()
		c.checkActuator()
		c.show(func(st *display.Status) {
			*st = display.Status{State: display.StateOff, Title: st.Title}
		})
	case command.KindFetch:
		err = c.poll(ctx, sched)
	case command.KindStatus:
	default:
		return Result{}, fmt.Errorf("controller: unsupported command %v", cmd.Kind)
	}
	log.Printf("controller: command %s", cmd)

	st := c.Snapshot().Status
	return Result{
		Command:         cmd.String(),
		State:           st.State,
		Duty:            st.Duty,
		Probability:     st.Probability,
		HaveProbability: st.HaveProbability,
	}, err
}

func (c *Controller) applyManual(p float64) {
	p = meter.Clamp(p)
	level := c.drv.Apply(p)
	c.checkActuator()
	c.show(func(st *display.Status) {
		st.State = display.StateManual
		st.Probability = p
		st.HaveProbability = true
		st.Duty = level
		st.Err = ""
	})
}

// poll fetches once. On failure the actuator is left untouched; a
// connectivity failure triggers one reconnect attempt before giving up.
// A poll cut short by ctx puts the previous status back.
func (c *Controller) poll(ctx context.Context, sched *schedule) error {
	prev := c.Snapshot().Status
	c.show(func(st *display.Status) { st.State = display.StateFetching })

	r, err := c.fetch.Fetch(ctx)
	now := c.now()
	sched.reset(now)
	c.update(func(s *Snapshot) {
		s.Polls++
		s.LastPollUTC = now.UTC()
	})

	if err != nil {
		if ctx.Err() != nil {
			c.show(func(st *display.Status) { *st = prev })
			return err
		}
		log.Printf("controller: poll failed: %v", err)
		c.update(func(s *Snapshot) { s.PollFailures++ })

		var cerr *source.ConnectivityError
		if errors.As(err, &cerr) && c.net != nil {
			c.reconnect(ctx)
		}
		c.show(func(st *display.Status) {
			st.State = display.StateError
			st.Err = shortError(err)
		})
		return err
	}

	p := meter.Clamp(r.Probability)
	level := c.drv.Apply(p)
	c.checkActuator()
	c.update(func(s *Snapshot) { s.LastSuccessUTC = now.UTC() })
	c.show(func(st *display.Status) {
		*st = display.Status{
			State:           display.StateOK,
			Title:           r.Title,
			Probability:     p,
			HaveProbability: true,
			Duty:            level,
			Volume:          r.Volume,
		}
	})
	return nil
}

func (c *Controller) reconnect(ctx context.Context) {
	c.show(func(st *display.Status) {
		st.State = display.StateConnecting
		st.Err = ""
	})
	rctx, cancel := context.WithTimeout(ctx, c.cfg.ReconnectTimeout)
	defer cancel()
	c.update(func(s *Snapshot) { s.Reconnects++ })
	if err := c.net.Reconnect(rctx); err != nil {
		log.Printf("controller: reconnect failed: %v", err)
		return
	}
	log.Printf("controller: reconnected")
}

// checkActuator copies the output's fault state into the snapshot.
func (c *Controller) checkActuator() {
	var msg string
	if err := c.drv.Err(); err != nil {
		msg = err.Error()
	}
	c.update(func(s *Snapshot) { s.ActuatorErr = msg })
}

// show edits the displayed status and pushes it to the sinks.
func (c *Controller) show(edit func(st *display.Status)) {
	var st display.Status
	c.update(func(s *Snapshot) {
		edit(&s.Status)
		st = s.Status
	})
	c.sink.Show(st)
}

func (c *Controller) update(fn func(s *Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.snap)
}

func shortError(err error) string {
	var (
		cerr *source.ConnectivityError
		perr *source.ProtocolError
		xerr *source.ParseError
	)
	switch {
	case errors.As(err, &perr):
		return perr.Status
	case errors.As(err, &cerr):
		return "no connection"
	case errors.As(err, &xerr):
		return "bad data"
	default:
		return err.Error()
	}
}
