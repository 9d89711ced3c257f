package shell

import (
	"fmt"
	"io"
	"os"
)

const redirectPerm = 0o640

// RedirectError reports a redirect target that could not be opened.
type RedirectError struct {
	Path   string
	Output bool
	Err    error
}

func (e *RedirectError) Error() string {
	direction := "input"
	if e.Output {
		direction = "output"
	}
	return fmt.Sprintf("cannot open %s for %s", e.Path, direction)
}

func (e *RedirectError) Unwrap() error { return e.Err }

// redirects holds the files a child gets as descriptors 0 and 1. A nil file
// leaves that descriptor inherited from the shell.
type redirects struct {
	stdin  *os.File
	stdout *os.File
}

// planRedirects opens every file the command's descriptors must point at.
// Background jobs never touch the terminal: a stream without an explicit
// target is connected to the null device. On error nothing is left open.
func planRedirects(cmd Command, background bool) (*redirects, error) {
	r := &redirects{}

	if background && cmd.Input == "" {
		f, err := os.Open(os.DevNull)
		if err != nil {
			return nil, &RedirectError{Path: os.DevNull, Err: err}
		}
		r.stdin = f
	}

	if background && cmd.Output == "" {
		f, err := openOutput(os.DevNull)
		if err != nil {
			r.release()
			return nil, &RedirectError{Path: os.DevNull, Output: true, Err: err}
		}
		r.stdout = f
	}

	if cmd.Input != "" {
		f, err := os.Open(cmd.Input)
		if err != nil {
			r.release()
			return nil, &RedirectError{Path: cmd.Input, Err: err}
		}
		r.stdin = f
	}

	if cmd.Output != "" {
		f, err := openOutput(cmd.Output)
		if err != nil {
			r.release()
			return nil, &RedirectError{Path: cmd.Output, Output: true, Err: err}
		}
		r.stdout = f
	}

	return r, nil
}

func openOutput(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, redirectPerm)
}

func (r *redirects) input(fallback io.Reader) io.Reader {
	if r.stdin != nil {
		return r.stdin
	}
	return fallback
}

func (r *redirects) output(fallback io.Writer) io.Writer {
	if r.stdout != nil {
		return r.stdout
	}
	return fallback
}

// release closes the shell's copies. The child keeps its own descriptors.
func (r *redirects) release() {
	if r.stdin != nil {
		r.stdin.Close()
		r.stdin = nil
	}
	if r.stdout != nil {
		r.stdout.Close()
		r.stdout = nil
	}
}
