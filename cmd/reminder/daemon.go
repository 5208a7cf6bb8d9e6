package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reminder/internal/api"
	"reminder/internal/config"
	"reminder/internal/heartbeat"
	"reminder/internal/journal"
	"reminder/internal/logging"
	"reminder/internal/metrics"
	"reminder/internal/notify"
	"reminder/internal/scheduler"
	"reminder/internal/supervisor"
)

const stopTimeout = 10 * time.Second

type DaemonCmd struct {
	Start   DaemonStartCmd   `cmd:"" help:"Start the daemon in the background"`
	Stop    DaemonStopCmd    `cmd:"" help:"Stop the background daemon"`
	Status  DaemonStatusCmd  `cmd:"" help:"Report daemon health"`
	Run     DaemonRunCmd     `cmd:"" help:"Run the daemon loop in this process"`
	Install DaemonInstallCmd `cmd:"" help:"Install an autostart unit for the current user"`
}

func (g *Global) pidFile() *supervisor.PIDFile {
	return supervisor.NewPIDFile(g.path(supervisor.PIDFileName))
}

func (g *Global) heartbeat() *heartbeat.File {
	return heartbeat.New(g.path(heartbeat.FileName))
}

func (g *Global) health() (heartbeat.Status, error) {
	pid, alive, err := g.pidFile().Running()
	if err != nil {
		return heartbeat.Status{}, err
	}
	return g.heartbeat().Check(pid, alive, g.Now(), g.Cfg.Daemon.StaleAfter)
}

type DaemonStartCmd struct{}

func (DaemonStartCmd) Run(g *Global, cli *CLI) error {
	p := g.pidFile()
	pid, alive, err := p.Running()
	if err != nil {
		return err
	}
	if alive {
		g.printf("Daemon already running (pid %d).\n", pid)
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := append(cli.forwardArgs(), "daemon", "run")
	pid, err = supervisor.Spawn(exe, args...)
	if err != nil {
		return err
	}
	// The child claims the marker too; writing it here closes the gap
	// before it gets that far.
	if err := p.Write(pid); err != nil {
		return err
	}
	log.Info().Int("pid", pid).Msg("daemon started")
	g.printf("Daemon started (pid %d).\n", pid)
	return nil
}

type DaemonStopCmd struct{}

func (DaemonStopCmd) Run(g *Global) error {
	stopped, err := g.pidFile().Stop(stopTimeout)
	if err != nil {
		return err
	}
	if !stopped {
		g.printf("Daemon is not running.\n")
		return nil
	}
	_ = g.heartbeat().Remove()
	log.Info().Msg("daemon stopped")
	g.printf("Daemon stopped.\n")
	return nil
}

type DaemonStatusCmd struct{}

func (DaemonStatusCmd) Run(g *Global) error {
	st, err := g.health()
	if err != nil {
		return err
	}
	g.printf("Status:    %s\n", st.State)
	if st.PID != 0 {
		g.printf("PID:       %d\n", st.PID)
	}
	if st.LastHeartbeat != nil {
		g.printf("Heartbeat: %s (%s ago)\n", st.LastHeartbeat.Local().Format(displayTime), humanDuration(st.Age))
	}
	switch st.State {
	case heartbeat.Stuck:
		g.printf("The daemon process is alive but has not reported for over %s.\n", g.Cfg.Daemon.StaleAfter)
	case heartbeat.NotRunning:
		g.printf("Start it with: reminder daemon start\n")
	}
	return nil
}

type DaemonRunCmd struct {
	Foreground bool `short:"f" help:"Also log to stderr"`
}

func (d *DaemonRunCmd) Run(g *Global, cli *CLI) error {
	self := os.Getpid()
	p := g.pidFile()
	if err := p.Claim(self); err != nil {
		return err
	}
	defer func() { _ = p.Release(self) }()

	if d.Foreground {
		if err := d.mirrorLog(g, cli); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.NewPrometheusRecorder(nil)
	hb := g.heartbeat()
	opts := []scheduler.Option{
		scheduler.WithInterval(g.Cfg.Daemon.PollInterval),
		scheduler.WithHeartbeatInterval(g.Cfg.Daemon.HeartbeatInterval),
		scheduler.WithMetrics(rec),
	}

	var j journal.Repository
	if g.Cfg.Journal.Enabled {
		db, err := journal.Open(g.path(journal.FileName))
		if err != nil {
			log.Error().Err(err).Msg("delivery journal unavailable, continuing without it")
		} else {
			defer db.Close()
			j = journal.NewSQLiteRepo(db)
			opts = append(opts, scheduler.WithJournal(j, g.Cfg.Journal.Retention))
		}
	}

	svc := scheduler.NewService(g.Repo, buildNotifier(g.Cfg), hb, opts...)
	if err := svc.WatchStore(ctx); err != nil {
		log.Warn().Err(err).Msg("store watch unavailable, relying on polling")
	}

	var srv *http.Server
	if g.Cfg.API.Addr != "" {
		srv = &http.Server{
			Addr: g.Cfg.API.Addr,
			Handler: api.NewServer(api.Deps{
				Repo:           g.Repo,
				Journal:        j,
				Health:         g.health,
				Metrics:        rec.Handler(),
				AllowedOrigins: g.Cfg.API.AllowedOrigins,
				Now:            g.Now,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server")
			}
		}()
	}

	svc.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	if err := hb.Remove(); err != nil {
		log.Warn().Err(err).Msg("failed to remove heartbeat")
	}
	log.Info().Msg("daemon exited")
	return nil
}

func (d *DaemonRunCmd) mirrorLog(g *Global, cli *CLI) error {
	level := log.Logger.GetLevel()
	if cli.Verbose {
		level = zerolog.DebugLevel
	}
	if g.logFile != nil {
		_ = g.logFile.Close()
	}
	rf, err := logging.Setup(g.Cfg.DataDir, g.Cfg.Log.MaxSize, level, os.Stderr)
	if err != nil {
		return err
	}
	g.logFile = rf
	return nil
}

// buildNotifier tries the desktop first and falls back to the log. A
// configured webhook is always called as well.
func buildNotifier(cfg *config.Config) notify.Notifier {
	var chain notify.Chain
	if cfg.Notify.Desktop {
		chain = append(chain, notify.NewDesktop(cfg.Notify.Timeout))
	}
	chain = append(chain, notify.Log{})
	if cfg.Notify.WebhookURL == "" {
		return chain
	}
	return notify.Fanout{chain, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout)}
}

type DaemonInstallCmd struct {
	Print bool `help:"Print the unit instead of writing it"`
}

func (d *DaemonInstallCmd) Run(g *Global, cli *CLI) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	unit, err := supervisor.RenderUnit(runtime.GOOS, home, exe, cli.forwardArgs()...)
	if err != nil {
		return err
	}
	if d.Print {
		g.printf("# %s\n%s", unit.Path, unit.Content)
		return nil
	}
	if err := unit.Install(); err != nil {
		return fmt.Errorf("install %s: %w", unit.Path, err)
	}
	g.printf("Wrote %s\nEnable it with: %s\n", unit.Path, unit.Enable)
	return nil
}
