package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reminder/internal/config"
	"reminder/internal/domain"
	"reminder/internal/logging"
	"reminder/internal/store"
)

// Global carries what every command needs once flags are parsed.
type Global struct {
	Cfg  *config.Config
	Repo store.Repository
	Out  io.Writer
	Now  func() time.Time

	// Width of the output terminal; 0 leaves tables unconstrained.
	Width int

	logFile *logging.RotatingFile
}

func (g *Global) path(name string) string { return filepath.Join(g.Cfg.DataDir, name) }

func (g *Global) printf(format string, args ...any) {
	fmt.Fprintf(g.Out, format, args...)
}

func (g *Global) close() {
	if g.logFile != nil {
		_ = g.logFile.Close()
	}
}

type CLI struct {
	Config  string `help:"Configuration file path" type:"path"`
	DataDir string `help:"Data directory (overrides config)" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Add     AddCmd     `cmd:"" help:"Add a one-time or recurring reminder"`
	List    ListCmd    `cmd:"" aliases:"ls" help:"List reminders"`
	Show    ShowCmd    `cmd:"" help:"Show one reminder"`
	Edit    EditCmd    `cmd:"" help:"Edit a reminder"`
	Delete  DeleteCmd  `cmd:"" aliases:"rm" help:"Delete a reminder"`
	Pause   PauseCmd   `cmd:"" help:"Pause a reminder"`
	Resume  ResumeCmd  `cmd:"" help:"Resume a paused reminder"`
	Clean   CleanCmd   `cmd:"" help:"Remove completed reminders"`
	Tags    TagsCmd    `cmd:"" help:"List tags in use"`
	Export  ExportCmd  `cmd:"" help:"Export reminders to a JSON file"`
	Import  ImportCmd  `cmd:"" help:"Import reminders from a JSON file"`
	History HistoryCmd `cmd:"" help:"Show delivery history"`
	Daemon  DaemonCmd  `cmd:"" help:"Control the background daemon"`
	Logs    LogsCmd    `cmd:"" help:"Inspect the log file"`
}

// AfterApply loads configuration and opens the store and log once.
func (c *CLI) AfterApply(g *Global) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return &domain.StorageError{Op: "mkdir", Path: cfg.DataDir, Err: err}
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.Verbose {
		level = zerolog.DebugLevel
	}
	rf, err := logging.Setup(cfg.DataDir, cfg.Log.MaxSize, level)
	if err != nil {
		return err
	}

	g.Cfg = cfg
	g.logFile = rf
	g.Repo = store.NewFileRepo(filepath.Join(cfg.DataDir, store.FileName))
	return nil
}

// forwardArgs repeats the global flags for a spawned daemon.
func (c *CLI) forwardArgs() []string {
	var args []string
	if c.Config != "" {
		args = append(args, "--config", c.Config)
	}
	if c.DataDir != "" {
		args = append(args, "--data-dir", c.DataDir)
	}
	if c.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

func newParser(cli *CLI, g *Global, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("reminder"),
		kong.Description("Schedule one-time and recurring reminders."),
		kong.UsageOnError(),
		kong.Bind(g),
	}, opts...)
	return kong.New(cli, opts...)
}

func main() {
	var cli CLI
	g := &Global{Out: os.Stdout, Now: time.Now, Width: terminalWidth()}
	parser, err := newParser(&cli, g)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = ctx.Run(&cli)
	if err != nil {
		log.Error().Err(err).Str("command", ctx.Command()).Msg("command failed")
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	g.close()
	if err != nil {
		os.Exit(1)
	}
}
