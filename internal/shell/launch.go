package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"

	"smallsh/internal/logutils"
)

// ErrSpawn means the operating system could not create a new process. The
// shell cannot tell whether a half-created child exists, so it gives up.
var ErrSpawn = errors.New("cannot create process")

// IO is the set of streams a child inherits when it is not redirected.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Outcome describes a finished launch. For a background job Status is zero:
// the job's status is recorded when it is reaped.
type Outcome struct {
	PID        int
	Background bool
	Status     Status
}

// Launcher starts external programs.
type Launcher struct {
	state   *State
	signals Dispositions
	jobs    *Registry
	stdio   IO
	notices io.Writer
	log     zerolog.Logger
}

func NewLauncher(state *State, signals Dispositions, jobs *Registry, stdio IO, notices io.Writer) *Launcher {
	return &Launcher{
		state:   state,
		signals: signals,
		jobs:    jobs,
		stdio:   stdio,
		notices: notices,
		log:     logutils.Component("launcher"),
	}
}

// Launch runs cmd from the executable at path. A background job is registered
// and Launch returns at once; otherwise it waits for the child and records its
// status. Failures the shell can survive are reported to the user and recorded
// as the last status; the returned error is non-nil only for ErrSpawn.
func (l *Launcher) Launch(cmd Command, path string) (Outcome, error) {
	// Resolved once: the same value drives the redirect plan, the signal
	// dispositions and the bookkeeping below.
	background := l.state.EffectiveBackground(cmd.Background)
	outcome := Outcome{Background: background}

	redir, err := planRedirects(cmd, background)
	if err != nil {
		fmt.Fprintln(l.notices, err)
		l.log.Debug().Err(err).Str("cmd", cmd.Name()).Msg("redirect failed")
		return l.fail(outcome), nil
	}

	child := &exec.Cmd{
		Path:   path,
		Args:   cmd.Args,
		Env:    os.Environ(),
		Stdin:  redir.input(l.stdio.In),
		Stdout: redir.output(l.stdio.Out),
		Stderr: l.stdio.Err,
	}

	restore := l.signals.PrepareLaunch(background)
	err = child.Start()
	restore()
	redir.release()

	if err != nil {
		if isSpawnFailure(err) {
			l.state.SetLastStatus(statusFailure)
			return outcome, fmt.Errorf("%w: %w", ErrSpawn, err)
		}
		fmt.Fprintf(l.stdio.Err, "%s: %v\n", cmd.Name(), execErrno(err))
		l.log.Debug().Err(err).Str("path", path).Msg("exec failed")
		return l.fail(outcome), nil
	}

	outcome.PID = child.Process.Pid
	l.log.Debug().
		Int("pid", outcome.PID).
		Str("path", path).
		Bool("background", background).
		Msg("process started")

	if background {
		fmt.Fprintf(l.notices, "background pid is %d\n", outcome.PID)
		l.jobs.Register(outcome.PID, child.Process)
		return outcome, nil
	}

	outcome.Status = l.wait(child)
	l.state.SetLastStatus(outcome.Status)
	return outcome, nil
}

func (l *Launcher) wait(child *exec.Cmd) Status {
	err := child.Wait()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		l.log.Warn().Err(err).Int("pid", child.Process.Pid).Msg("wait for foreground child")
	}

	if child.ProcessState == nil {
		return statusFailure
	}
	ws, ok := child.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return Status{Code: child.ProcessState.ExitCode()}
	}
	return statusOf(ws)
}

func (l *Launcher) fail(outcome Outcome) Outcome {
	outcome.Status = statusFailure
	l.state.SetLastStatus(statusFailure)
	return outcome
}

// isSpawnFailure reports whether Start failed while creating the process, as
// opposed to failing to replace the new process's image.
func isSpawnFailure(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM)
}

func execErrno(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}
