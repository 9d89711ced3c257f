package shell

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"smallsh/internal/config"
	"smallsh/internal/history"
)

// syncBuffer is a bytes.Buffer safe for the signal goroutine and the exec
// copy goroutines to write to concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testShell struct {
	*Shell
	out    *syncBuffer
	errOut *syncBuffer
}

func newTestShell(t *testing.T, input string, opts ...Option) *testShell {
	t.Helper()

	cfg := config.Default()
	cfg.HomeDir = t.TempDir()

	hist, err := history.New(afero.NewMemMapFs(), "/history", 0)
	require.NoError(t, err)

	out, errOut := &syncBuffer{}, &syncBuffer{}
	opts = append([]Option{WithTerminator(func() error { return nil })}, opts...)
	s := New(cfg, hist, IO{In: strings.NewReader(input), Out: out, Err: errOut}, opts...)
	t.Cleanup(s.signals.Stop)

	return &testShell{Shell: s, out: out, errOut: errOut}
}

type testLauncher struct {
	*Launcher
	state *State
	jobs  *Registry
	out   *syncBuffer
	err   *syncBuffer
}

func newTestLauncher(t *testing.T) *testLauncher {
	t.Helper()

	state := NewState()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	signals := NewController(state, out)
	signals.Install()
	t.Cleanup(signals.Stop)

	jobs := NewRegistry(state, WithPruneReaped(true))
	l := NewLauncher(state, signals, jobs, IO{In: strings.NewReader(""), Out: out, Err: errOut}, out)

	return &testLauncher{Launcher: l, state: state, jobs: jobs, out: out, err: errOut}
}

func requireLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}
}

func mustLookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := LookPath(name, searchPath())
	require.NoError(t, err, "%s not found in PATH", name)
	return path
}

// ignoredSignals parses the SigIgn mask that `grep SigIgn /proc/self/status`
// wrote to file.
func ignoredSignals(t *testing.T, file string) uint64 {
	t.Helper()

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	fields := strings.Fields(string(data))
	require.Len(t, fields, 2, "unexpected SigIgn line %q", data)

	mask, err := strconv.ParseUint(fields[1], 16, 64)
	require.NoError(t, err)
	return mask
}

func signalBit(sig int) uint64 {
	return 1 << (sig - 1)
}

func tempPath(t *testing.T, name string) string {
	return filepath.Join(t.TempDir(), name)
}
