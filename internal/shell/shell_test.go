package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	return goldie.New(t, goldie.WithFixtureDir(filepath.Join(wd, "testdata")))
}

func runShell(t *testing.T, s *testShell) {
	t.Helper()
	reader, err := s.NewLineReader(false)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), reader))
}

func TestShell_Transcript(t *testing.T) {
	g := newGoldie(t)
	t.Chdir(t.TempDir())

	s := newTestShell(t, strings.Join([]string{
		"# comment",
		"",
		"false",
		"true",
		"status",
		"false",
		"status",
		"definitely-not-a-command-xyz",
		"status",
		"echo hello > out.txt",
		"cat < out.txt",
		"cat < missing.txt",
		"status",
	}, "\n")+"\n")

	runShell(t, s)

	g.Assert(t, "transcript", []byte(s.out.String()))
	assert.Empty(t, s.errOut.String())
}

func TestShell_BackgroundNoticeBeforePrompt(t *testing.T) {
	requireLinux(t)
	s := newTestShell(t, "")

	require.NoError(t, s.Execute("sh -c 'exit 6' &"))
	pid := s.jobs.Jobs()[0].PID

	require.Eventually(t, func() bool { return exited(pid) }, 5*time.Second, 20*time.Millisecond)

	runShell(t, s)

	assert.Equal(t,
		fmt.Sprintf("background pid is %d\nbackground pid %d is done: exit value 6\n: ", pid, pid),
		s.out.String())
	assert.Equal(t, Status{Code: 6}, s.state.LastStatus())
}

func TestShell_ChangeDirectory(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PWD", os.Getenv("PWD"))

	home := resolved(t, t.TempDir())
	t.Setenv("HOME", home)
	elsewhere := resolved(t, t.TempDir())

	s := newTestShell(t, "")

	t.Run("no argument goes home", func(t *testing.T) {
		require.NoError(t, s.Execute("cd"))
		assert.Equal(t, home, cwd(t))
		assert.Equal(t, home, os.Getenv("PWD"))
		assert.Equal(t, Status{}, s.state.LastStatus())
	})

	t.Run("relative path", func(t *testing.T) {
		require.NoError(t, os.Mkdir(filepath.Join(home, "sub"), 0o755))
		require.NoError(t, s.Execute("cd sub"))
		assert.Equal(t, filepath.Join(home, "sub"), cwd(t))
		assert.Equal(t, filepath.Join(home, "sub"), os.Getenv("PWD"))
	})

	t.Run("absolute path", func(t *testing.T) {
		require.NoError(t, s.Execute("cd "+elsewhere))
		assert.Equal(t, elsewhere, cwd(t))
		assert.Equal(t, elsewhere, os.Getenv("PWD"))
	})

	t.Run("invalid path", func(t *testing.T) {
		before := cwd(t)
		require.Equal(t, elsewhere, before)

		err := s.Execute("cd /definitely/not/a/dir")
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Equal(t, before, cwd(t))
		assert.Equal(t, Status{Code: 1}, s.state.LastStatus())
	})

	t.Run("no argument without HOME uses configured home", func(t *testing.T) {
		t.Setenv("HOME", "")
		require.NoError(t, s.Execute("cd"))
		assert.Equal(t, resolved(t, s.config.HomeDir), cwd(t))
	})
}

func TestShell_ExitTerminatesJobs(t *testing.T) {
	calls := 0
	s := newTestShell(t, "sleep 30 &\nexit\nstatus\n", WithTerminator(func() error {
		calls++
		return nil
	}))

	runShell(t, s)

	assert.Equal(t, 1, calls)
	assert.NotContains(t, s.out.String(), "exit value", "nothing runs after exit")

	require.Len(t, s.jobs.Jobs(), 1)
	var notices []string
	require.Eventually(t, func() bool {
		notices = append(notices, s.jobs.Drain()...)
		return len(notices) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, notices[0], "terminated by signal 15")
}

func TestShell_ExitIgnoresArguments(t *testing.T) {
	s := newTestShell(t, "")
	assert.ErrorIs(t, s.Execute("exit 3"), ErrExit)
}

func TestShell_StatusIgnoresRedirects(t *testing.T) {
	t.Chdir(t.TempDir())
	s := newTestShell(t, "")

	require.NoError(t, s.Execute("status > out.txt &"))

	assert.Equal(t, "exit value 0\n", s.out.String())
	assert.NoFileExists(t, "out.txt")
	assert.Empty(t, s.jobs.Jobs())
}

func TestShell_ForegroundOnlyMode(t *testing.T) {
	s := newTestShell(t, "")
	s.signals.HandleStop()
	s.out.Reset()

	require.NoError(t, s.Execute("sh -c 'exit 2' &"))

	assert.Empty(t, s.out.String())
	assert.Empty(t, s.jobs.Jobs())
	assert.Equal(t, Status{Code: 2}, s.state.LastStatus())
}

func TestShell_ParseError(t *testing.T) {
	s := newTestShell(t, "echo \"oops\nstatus\n")

	runShell(t, s)

	assert.Contains(t, s.errOut.String(), "Error: parse command")
	assert.Equal(t, ": : exit value 1\n: ", s.out.String())
}

func TestShell_ArgumentLimit(t *testing.T) {
	s := newTestShell(t, "")
	s.limits.MaxArgs = 2

	err := s.Execute("echo a b")
	require.ErrorIs(t, err, ErrTooManyArgs)
	assert.Equal(t, Status{Code: 1}, s.state.LastStatus())
}

func TestShell_Interrupt(t *testing.T) {
	s := newTestShell(t, "")
	reader := &scriptedReader{results: []readResult{
		{err: ErrInterrupted},
		{line: "status"},
	}}

	require.NoError(t, s.Run(context.Background(), reader))

	assert.Equal(t, "terminated by signal 2\nexit value 0\n", s.out.String())
	assert.True(t, reader.closed)
}

func TestShell_ReadError(t *testing.T) {
	s := newTestShell(t, "")
	boom := errors.New("boom")
	reader := &scriptedReader{results: []readResult{{err: boom}}}

	err := s.Run(context.Background(), reader)
	require.ErrorIs(t, err, boom)
}

func TestShell_ContextCanceled(t *testing.T) {
	s := newTestShell(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, &scriptedReader{})
	require.ErrorIs(t, err, context.Canceled)
}

type readResult struct {
	line string
	err  error
}

// scriptedReader replays results and then reports end of input.
type scriptedReader struct {
	results []readResult
	closed  bool
}

func (r *scriptedReader) ReadLine(string) (string, error) {
	if len(r.results) == 0 {
		return "", io.EOF
	}
	next := r.results[0]
	r.results = r.results[1:]
	return next.line, next.err
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

// exited reports whether pid is a zombie, without reaping it.
func exited(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// The state field follows the parenthesised command name.
	fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func cwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	return resolved(t, wd)
}

func resolved(t *testing.T, path string) string {
	t.Helper()
	path, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return path
}
