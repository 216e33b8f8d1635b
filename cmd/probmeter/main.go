package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"probmeter/internal/config"
	"probmeter/internal/console"
	"probmeter/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./probmeter.yaml", "Path to YAML config")
	flag.Parse()

	logs := web.NewLogBuffer(500)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logs); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logs *web.LogBuffer) error {
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("probmeter starting")
	log.Printf("source url=%s interval=%s calibration=%d/%d/%d backend=%s",
		cfg.Source.URL, cfg.Source.Interval, cfg.Meter.CenterDuty, cfg.Meter.MaxDuty, cfg.Meter.DutyRange, cfg.Meter.Backend)

	rt.connect(ctx, cfg.Loop.ReconnectTimeout)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	ch, err := console.Open(console.Config{Port: cfg.Console.Port, Baud: cfg.Console.Baud, Stdin: cfg.Console.Stdin})
	if err != nil {
		return err
	}
	if ch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := console.Serve(ctx, ch, rt.ctrl); err != nil && ctx.Err() == nil {
				log.Printf("console stopped: %v", err)
			}
		}()
	}

	if cfg.Web.Listen != "" {
		var network web.NetworkStatus
		if rt.wifi != nil {
			network = rt.wifi
		}
		h := web.Handler(rt.ctrl, network, logs)
		log.Printf("web listening on %s", cfg.Web.Listen)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil {
				log.Printf("web server stopped: %v", err)
				cancel()
			}
		}()
	}

	err = rt.ctrl.Run(ctx)
	cancel()
	wg.Wait()
	log.Printf("probmeter stopping")
	return err
}
