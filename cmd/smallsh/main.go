package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"smallsh/internal/config"
	"smallsh/internal/history"
	"smallsh/internal/logutils"
	"smallsh/internal/shell"
)

type Flags struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yml"
	}
	return filepath.Join(dir, "smallsh", "config.yml")
}

func main() {
	flags := &Flags{}

	app := &cli.Command{
		Name:      "smallsh",
		Usage:     "A small interactive shell with background jobs",
		UsageText: "smallsh [global options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("SMALLSH_CONFIG"),
				Value:       defaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (trace, debug, info, warn, error, disabled); overrides the config file",
				Sources:     cli.EnvVars("SMALLSH_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file; overrides the config file",
				Sources:     cli.EnvVars("SMALLSH_LOG_FILE"),
				Destination: &flags.LogFile,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unexpected argument %q", c.Args().First())
			}
			return run(ctx, flags)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *Flags) error {
	fsys := afero.NewOsFs()

	cfg, err := config.Load(fsys, flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.LogFile != "" {
		cfg.Log.File = flags.LogFile
	}

	logger, closer, err := logutils.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer closer()
	log.Logger = logger

	hist, err := history.New(fsys, cfg.HistoryFile, cfg.HistorySize)
	if err != nil {
		return fmt.Errorf("error initializing history: %w", err)
	}

	sh := shell.New(cfg, hist, shell.IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})

	reader, err := sh.NewLineReader(term.IsTerminal(int(os.Stdin.Fd())))
	if err != nil {
		return err
	}

	log.Info().Str("config", flags.ConfigPath).Msg("shell started")
	return sh.Run(ctx, reader)
}
