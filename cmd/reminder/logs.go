package main

type LogsCmd struct {
	Show  LogsShowCmd  `cmd:"" default:"withargs" help:"Print the last lines of the log"`
	Info  LogsInfoCmd  `cmd:"" help:"Show log file locations and sizes"`
	Clear LogsClearCmd `cmd:"" help:"Delete the log files"`
}

type LogsShowCmd struct {
	Lines int `short:"n" default:"50" help:"Number of lines"`
}

func (l *LogsShowCmd) Run(g *Global) error {
	lines, err := g.logFile.Tail(l.Lines)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		g.printf("Log is empty.\n")
		return nil
	}
	for _, line := range lines {
		g.printf("%s\n", line)
	}
	return nil
}

type LogsInfoCmd struct{}

func (LogsInfoCmd) Run(g *Global) error {
	cur, old := g.logFile.Size()
	g.printf("Log file: %s (%d bytes)\n", g.logFile.Path(), cur)
	if old > 0 {
		g.printf("Rotated:  %s (%d bytes)\n", g.logFile.OldPath(), old)
	}
	g.printf("Rotates at %d bytes.\n", g.Cfg.Log.MaxSize)
	return nil
}

type LogsClearCmd struct{}

func (LogsClearCmd) Run(g *Global) error {
	if err := g.logFile.Clear(); err != nil {
		return err
	}
	g.printf("Log cleared.\n")
	return nil
}
