package shell

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"smallsh/internal/logutils"
)

// Job is a background process launched by the shell.
type Job struct {
	PID    int
	Status Status
	Done   bool

	process *os.Process
}

// Notice is the line printed when the job's completion is observed.
func (j *Job) Notice() string {
	return fmt.Sprintf("background pid %d is done: %s", j.PID, j.Status)
}

// PollFunc checks once, without blocking, whether pid has terminated.
type PollFunc func(pid int) (done bool, status Status, err error)

// Registry tracks background jobs in launch order.
type Registry struct {
	jobs  []*Job
	state *State
	poll  PollFunc
	log   zerolog.Logger

	pruneReaped  bool
	stopOnSignal bool
}

type RegistryOption func(*Registry)

// WithPruneReaped drops jobs from the registry once their notice is produced.
func WithPruneReaped(prune bool) RegistryOption {
	return func(r *Registry) { r.pruneReaped = prune }
}

// WithStopOnSignal makes Drain return as soon as it reaps a job that was
// killed by a signal, leaving the remaining jobs for the next Drain.
func WithStopOnSignal(stop bool) RegistryOption {
	return func(r *Registry) { r.stopOnSignal = stop }
}

// WithPollFunc replaces the wait4-based completion probe.
func WithPollFunc(poll PollFunc) RegistryOption {
	return func(r *Registry) { r.poll = poll }
}

func NewRegistry(state *State, opts ...RegistryOption) *Registry {
	r := &Registry{
		state: state,
		poll:  pollProcess,
		log:   logutils.Component("jobs"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a new unfinished job. process may be nil when the caller
// only knows the pid.
func (r *Registry) Register(pid int, process *os.Process) *Job {
	job := &Job{PID: pid, process: process}
	r.jobs = append(r.jobs, job)
	r.log.Debug().Int("pid", pid).Int("tracked", len(r.jobs)).Msg("background job registered")
	return job
}

// Jobs returns the tracked jobs, oldest first.
func (r *Registry) Jobs() []*Job {
	return append([]*Job(nil), r.jobs...)
}

// Drain probes every unfinished job once and returns a notice for each one
// found to have terminated. It never blocks. Each reaped status becomes the
// session's last status.
func (r *Registry) Drain() []string {
	var notices []string

	for _, job := range r.jobs {
		if job.Done {
			continue
		}

		done, status, err := r.poll(job.PID)
		if err != nil {
			// Nothing left to wait for; another waiter got to it first.
			r.log.Warn().Err(err).Int("pid", job.PID).Msg("background job vanished")
			job.Done = true
			r.release(job)
			continue
		}
		if !done {
			continue
		}

		job.Done = true
		job.Status = status
		r.release(job)
		r.state.SetLastStatus(status)
		notices = append(notices, job.Notice())

		r.log.Info().
			Int("pid", job.PID).
			Int("code", status.Code).
			Bool("signaled", status.Signaled).
			Msg("background job reaped")

		if status.Signaled && r.stopOnSignal {
			break
		}
	}

	if r.pruneReaped {
		r.prune()
	}

	return notices
}

// Terminate sends sig to every job that has not been reaped yet.
func (r *Registry) Terminate(sig syscall.Signal) {
	for _, job := range r.jobs {
		if job.Done {
			continue
		}
		if err := unix.Kill(job.PID, sig); err != nil && !errors.Is(err, unix.ESRCH) {
			r.log.Warn().Err(err).Int("pid", job.PID).Msg("signal background job")
		}
	}
}

func (r *Registry) prune() {
	kept := r.jobs[:0]
	for _, job := range r.jobs {
		if !job.Done {
			kept = append(kept, job)
		}
	}
	for i := len(kept); i < len(r.jobs); i++ {
		r.jobs[i] = nil
	}
	r.jobs = kept
}

func (r *Registry) release(job *Job) {
	if job.process == nil {
		return
	}
	if err := job.process.Release(); err != nil {
		r.log.Debug().Err(err).Int("pid", job.PID).Msg("release process handle")
	}
	job.process = nil
}

func pollProcess(pid int) (bool, Status, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, Status{}, err
		}
		if wpid == 0 {
			return false, Status{}, nil
		}
		return true, statusOf(ws), nil
	}
}
