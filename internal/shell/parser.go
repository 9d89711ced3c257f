package shell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

var (
	ErrTooManyArgs           = errors.New("too many arguments")
	ErrLineTooLong           = errors.New("line too long")
	ErrMissingRedirectTarget = errors.New("missing redirect target")
)

// Command is one parsed input line.
type Command struct {
	Args       []string
	Input      string
	Output     string
	Background bool
}

func (c Command) Empty() bool {
	return len(c.Args) == 0
}

// Name is the program or built-in the command invokes.
func (c Command) Name() string {
	if c.Empty() {
		return ""
	}
	return c.Args[0]
}

// Limits bound what Parse accepts.
type Limits struct {
	MaxArgs       int
	MaxLineLength int
}

// Parse splits line into a Command. Blank lines and comments (lines starting
// with '#') yield an empty Command. The words "<" and ">" take the following
// word as their target and "&" requests background execution.
func Parse(line string, limits Limits) (Command, error) {
	var cmd Command

	if limits.MaxLineLength > 0 && len(line) > limits.MaxLineLength {
		return cmd, fmt.Errorf("%w (max %d characters)", ErrLineTooLong, limits.MaxLineLength)
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return cmd, nil
	}

	words, err := shellquote.Split(trimmed)
	if err != nil {
		return cmd, fmt.Errorf("parse command: %w", err)
	}

	for i := 0; i < len(words); i++ {
		switch words[i] {
		case "<", ">":
			if i+1 >= len(words) {
				return Command{}, fmt.Errorf("%w after %q", ErrMissingRedirectTarget, words[i])
			}
			if words[i] == "<" {
				cmd.Input = words[i+1]
			} else {
				cmd.Output = words[i+1]
			}
			i++
		case "&":
			cmd.Background = true
		default:
			cmd.Args = append(cmd.Args, words[i])
		}
	}

	if limits.MaxArgs > 0 && len(cmd.Args) > limits.MaxArgs {
		return Command{}, fmt.Errorf("%w (max %d)", ErrTooManyArgs, limits.MaxArgs)
	}

	return cmd, nil
}
