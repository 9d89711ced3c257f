package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
)

// ErrInterrupted is returned by a LineReader when the user pressed Ctrl-C
// while editing a line.
var ErrInterrupted = errors.New("interrupted")

// LineReader supplies input lines to the dispatch loop.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// NewLineReader returns a line editor on the terminal when interactive is
// true, and a plain line reader on the shell's input otherwise.
func (s *Shell) NewLineReader(interactive bool) (LineReader, error) {
	if !interactive {
		return &plainReader{in: bufio.NewReader(s.stdio.In), out: s.notices}, nil
	}

	historyLimit := s.config.HistorySize
	if historyLimit == 0 {
		historyLimit = -1
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 s.config.Prompt,
		HistoryLimit:           historyLimit,
		DisableAutoSaveHistory: true,
		FuncFilterInputRune:    s.filterInputRune,
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing readline: %w", err)
	}

	for _, item := range s.history.GetAll() {
		if err := rl.SaveHistory(item); err != nil {
			s.log.Warn().Err(err).Msg("seed line history")
			break
		}
	}

	// Notices printed while a line is being edited must redraw the prompt.
	s.notices.redirect(rl.Stdout())

	return &terminalReader{rl: rl, log: s.log}, nil
}

// filterInputRune sees keys while the terminal is in raw mode, where Ctrl-Z
// arrives as a character rather than as SIGTSTP.
func (s *Shell) filterInputRune(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		s.signals.HandleStop()
		return r, false
	}
	return r, true
}

type terminalReader struct {
	rl  *readline.Instance
	log zerolog.Logger
}

func (r *terminalReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		if err := r.rl.SaveHistory(line); err != nil {
			r.log.Debug().Err(err).Msg("save line history")
		}
	}
	return line, nil
}

func (r *terminalReader) Close() error {
	return r.rl.Close()
}

type plainReader struct {
	in  *bufio.Reader
	out io.Writer
}

func (r *plainReader) ReadLine(prompt string) (string, error) {
	io.WriteString(r.out, prompt)

	line, err := r.in.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *plainReader) Close() error {
	return nil
}
