package shell

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"smallsh/internal/logutils"
)

const (
	enterForegroundOnly = "\nEntering foreground-only mode (& is now ignored)\n"
	exitForegroundOnly  = "\nExiting foreground-only mode\n"
)

// Dispositions arranges signal handling around the creation of a child.
type Dispositions interface {
	// PrepareLaunch sets the dispositions a new child must inherit and
	// returns a func restoring the shell's own dispositions. It is called
	// immediately before and after process creation.
	PrepareLaunch(background bool) (restore func())
}

// Controller owns the shell's handling of SIGINT and SIGTSTP.
type Controller struct {
	state *State
	out   io.Writer
	log   zerolog.Logger

	sigs chan os.Signal
	done chan struct{}
	wg   sync.WaitGroup

	// mu serializes handler bodies so one never observes another half done.
	mu sync.Mutex

	installed bool
	stopOnce  sync.Once
}

func NewController(state *State, out io.Writer) *Controller {
	return &Controller{
		state: state,
		out:   out,
		log:   logutils.Component("signals"),
		sigs:  make(chan os.Signal, 1),
		done:  make(chan struct{}),
	}
}

// Install starts catching SIGINT and SIGTSTP. It must be called once, before
// the first command is dispatched.
func (c *Controller) Install() {
	c.installed = true
	c.catch()

	c.wg.Add(1)
	go c.handleSignals()
}

// Stop ends signal delivery and restores the default dispositions.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if !c.installed {
			return
		}
		signal.Stop(c.sigs)
		close(c.done)
		c.wg.Wait()
		signal.Reset(syscall.SIGINT, syscall.SIGTSTP)
	})
}

func (c *Controller) catch() {
	signal.Notify(c.sigs, syscall.SIGINT, syscall.SIGTSTP)
}

func (c *Controller) handleSignals() {
	defer c.wg.Done()
	for {
		select {
		case sig := <-c.sigs:
			switch sig {
			case syscall.SIGINT:
				c.HandleInterrupt()
			case syscall.SIGTSTP:
				c.HandleStop()
			}
		case <-c.done:
			return
		}
	}
}

// HandleInterrupt reports a caught SIGINT. The shell itself keeps running.
func (c *Controller) HandleInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "terminated by signal %d\n", int(syscall.SIGINT))
}

// HandleStop toggles foreground-only mode and announces the new mode.
func (c *Controller) HandleStop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.ToggleForegroundOnly() {
		io.WriteString(c.out, enterForegroundOnly)
	} else {
		io.WriteString(c.out, exitForegroundOnly)
	}
	c.log.Info().Bool("foreground_only", c.state.ForegroundOnly()).Msg("foreground-only mode toggled")
}

// PrepareLaunch implements Dispositions. Ignored dispositions survive exec
// while caught ones revert to the default, so the child ends up with:
//
//	SIGTSTP: ignored, foreground and background alike
//	SIGINT:  ignored in the background, default in the foreground
//
// The restore func re-installs the shell's handlers so it keeps reacting to
// SIGTSTP while it waits on a foreground child.
func (c *Controller) PrepareLaunch(background bool) func() {
	signal.Ignore(syscall.SIGTSTP)
	if background {
		signal.Ignore(syscall.SIGINT)
	}

	return func() {
		if c.installed {
			c.catch()
			return
		}
		signal.Reset(syscall.SIGINT, syscall.SIGTSTP)
	}
}
