package shell

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrExit is returned by Execute when the exit built-in ran.
var ErrExit = errors.New("exit")

func (s *Shell) executeBuiltin(cmd Command) (bool, error) {
	switch cmd.Name() {
	case "exit":
		return true, ErrExit
	case "cd":
		return true, s.changeDirectory(cmd.Args[1:])
	case "status":
		fmt.Fprintln(s.notices, s.state.LastStatus())
		return true, nil
	default:
		return false, nil
	}
}

// changeDirectory moves to args[0], or to $HOME without arguments, and
// publishes the new directory in $PWD.
func (s *Shell) changeDirectory(args []string) error {
	dir := os.Getenv("HOME")
	if dir == "" {
		dir = s.config.HomeDir
	}
	if len(args) > 0 {
		dir = args[0]
	}

	if err := os.Chdir(dir); err != nil {
		s.state.SetLastStatus(statusFailure)
		return fmt.Errorf("cd: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		s.state.SetLastStatus(statusFailure)
		return fmt.Errorf("error getting current directory: %w", err)
	}
	if err := os.Setenv("PWD", wd); err != nil {
		s.state.SetLastStatus(statusFailure)
		return fmt.Errorf("cd: set PWD: %w", err)
	}

	s.state.SetLastStatus(statusSuccess)
	return nil
}

// exit terminates the shell's background jobs and every other process in the
// shell's process group.
func (s *Shell) exit() {
	s.jobs.Terminate(syscall.SIGTERM)
	if err := s.terminate(); err != nil {
		s.log.Warn().Err(err).Msg("signal process group")
	}
}

func killProcessGroup() error {
	signal.Ignore(syscall.SIGTERM)
	return unix.Kill(0, unix.SIGTERM)
}
