package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"smallsh/internal/config"
	"smallsh/internal/history"
	"smallsh/internal/logutils"
)

type Shell struct {
	config   *config.Config
	history  *history.History
	state    *State
	signals  *Controller
	jobs     *Registry
	launcher *Launcher
	limits   Limits

	stdio     IO
	notices   *syncWriter
	errColor  *color.Color
	terminate func() error
	log       zerolog.Logger
}

type Option func(*Shell)

// WithTerminator replaces what exit does to the rest of the process group.
func WithTerminator(fn func() error) Option {
	return func(s *Shell) { s.terminate = fn }
}

func New(cfg *config.Config, hist *history.History, stdio IO, opts ...Option) *Shell {
	notices := &syncWriter{w: stdio.Out}
	state := NewState()
	signals := NewController(state, notices)
	jobs := NewRegistry(state,
		WithPruneReaped(cfg.Jobs.PruneReaped),
		WithStopOnSignal(cfg.Jobs.StopOnSignal),
	)

	s := &Shell{
		config:   cfg,
		history:  hist,
		state:    state,
		signals:  signals,
		jobs:     jobs,
		launcher: NewLauncher(state, signals, jobs, stdio, notices),
		limits: Limits{
			MaxArgs:       cfg.MaxArgs,
			MaxLineLength: cfg.MaxLineLength,
		},
		stdio:     stdio,
		notices:   notices,
		errColor:  color.New(color.FgRed),
		terminate: killProcessGroup,
		log:       logutils.Component("shell"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run is the interactive loop. Each turn reports finished background jobs,
// then reads and executes one line. It returns nil on end of input or exit,
// and an error wrapping ErrSpawn when a process could not be created.
func (s *Shell) Run(ctx context.Context, reader LineReader) error {
	s.signals.Install()
	defer s.signals.Stop()
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, notice := range s.jobs.Drain() {
			fmt.Fprintln(s.notices, notice)
		}

		line, err := reader.ReadLine(s.config.Prompt)
		switch {
		case errors.Is(err, ErrInterrupted):
			s.signals.HandleInterrupt()
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		err = s.Execute(line)
		switch {
		case err == nil:
		case errors.Is(err, ErrExit):
			s.exit()
			return nil
		case errors.Is(err, ErrSpawn):
			s.log.Error().Err(err).Msg("process creation failed")
			return err
		default:
			s.report(err)
		}
	}
}

// Execute parses and runs a single input line.
func (s *Shell) Execute(line string) error {
	cmd, err := Parse(line, s.limits)
	if err != nil {
		s.state.SetLastStatus(statusFailure)
		return err
	}
	if cmd.Empty() {
		return nil
	}

	if err := s.history.Add(line); err != nil {
		s.log.Warn().Err(err).Msg("save history")
	}

	if ok, err := s.executeBuiltin(cmd); ok {
		return err
	}
	return s.runExternal(cmd)
}

func (s *Shell) runExternal(cmd Command) error {
	path, err := LookPath(cmd.Name(), searchPath())
	if err != nil {
		fmt.Fprintf(s.notices, "%s: %v\n", cmd.Name(), err)
		s.state.SetLastStatus(statusFailure)
		s.log.Debug().Str("cmd", cmd.Name()).Msg("command not found")
		return nil
	}

	_, err = s.launcher.Launch(cmd, path)
	return err
}

func (s *Shell) report(err error) {
	s.errColor.Fprintf(s.stdio.Err, "Error: %v\n", err)
}

// syncWriter serializes writes from the dispatch loop and the signal
// goroutine onto one stream.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func (w *syncWriter) redirect(to io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w = to
}
