package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-observatory/mountd/config"
	"github.com/kestrel-observatory/mountd/dome"
	"github.com/kestrel-observatory/mountd/internal/logger"
	"github.com/kestrel-observatory/mountd/meade"
	"github.com/kestrel-observatory/mountd/server"
)

var (
	configPath = flag.String("config", "mountd.json", "path to the daemon configuration file")
	simulate   = flag.Bool("simulate", false, "serve a simulated handset instead of the serial port")
	httpAddr   = flag.String("addr", "", "listen address override")
)

func main() {
	flag.Parse()

	log := logger.New("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("loading configuration", "error", err)
	}
	if cfg.LogLevel != "" {
		log = logger.New(cfg.LogLevel)
	}

	var d dome.Dome = dome.Noop{}
	switch {
	case cfg.Dome == nil:
	case cfg.Dome.URL != "":
		d = dome.ConnectRemote(cfg.Dome.URL, cfg.Dome.SlaveID)
		log.Infow("dome bridge configured", "url", cfg.Dome.URL)
	default:
		d = dome.Connect(cfg.Dome.SerialPort, cfg.Dome.SerialBaud, cfg.Dome.SlaveID)
		log.Infow("dome controller configured", "port", cfg.Dome.SerialPort)
	}

	opts := meade.Options{
		Device:            cfg.SerialPort,
		Baud:              cfg.SerialBaud,
		ReadTimeout:       cfg.SerialReadTimeout(),
		Site:              cfg.Site(),
		InitializeTimeout: cfg.InitializeDeadline(),
		SlewPoll:          cfg.SlewPollInterval(),
		IdlePoll:          cfg.IdlePollInterval(),
		Dome:              d,
		Logger:            log,
	}
	if *simulate {
		sim := meade.NewSimulator(meade.SimulatorConfig{
			Site:        cfg.Site(),
			BootDelay:   2 * time.Second,
			HomingDelay: 2 * time.Second,
			SlewDelay:   5 * time.Second,
		})
		opts.Open = sim.Open
		log.Infow("serving a simulated handset")
	}
	m := meade.New(opts)

	srv := server.New(m, server.Config{
		Site: cfg.Site(),
		Limits: server.Limits{
			HAMin:  cfg.HASoftLimits[0],
			HAMax:  cfg.HASoftLimits[1],
			DecMin: cfg.DecSoftLimits[0],
			DecMax: cfg.DecSoftLimits[1],
		},
		Parks:       parks(cfg),
		ControlIPs:  cfg.ControlIPs,
		SlewTimeout: cfg.SlewDeadline(),
		SlewPoll:    cfg.SlewPollInterval(),
		Logger:      log,
	})

	addr := cfg.HTTPAddr
	if *httpAddr != "" {
		addr = *httpAddr
	}
	httpSrv := &http.Server{
		Handler:     srv.Router(),
		Addr:        addr,
		ReadTimeout: 15 * time.Second,
		// Pointing commands hold their request open until the slew
		// settles, so the write side gets the slew timeout plus slack.
		WriteTimeout: cfg.SlewDeadline() + 15*time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.Run(ctx)
	})
	g.Go(func() error {
		log.Infow("listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			log.Infow("shutting down", "signal", sig.String())
		case <-ctx.Done():
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "stopping http server")
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalw("daemon stopped", "error", err)
	}
	log.Infow("daemon stopped")
}

func parks(cfg *config.Config) map[string]server.Park {
	parks := make(map[string]server.Park, len(cfg.ParkPositions))
	for name, p := range cfg.ParkPositions {
		parks[name] = server.Park{Desc: p.Desc, Alt: p.Alt, Az: p.Az}
	}
	return parks
}
