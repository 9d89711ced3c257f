package shell

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

var ErrNotFound = errors.New("no such file or directory")

// searchPath returns the directories listed in $PATH, in order.
func searchPath() []string {
	return filepath.SplitList(os.Getenv("PATH"))
}

// LookPath resolves name to an executable. A name containing a slash is used
// as given; otherwise each directory in dirs is tried in order and the first
// executable regular file wins.
func LookPath(name string, dirs []string) (string, error) {
	if name == "" {
		return "", ErrNotFound
	}

	if strings.Contains(name, "/") {
		if isExecutable(name) {
			return filepath.Abs(name)
		}
		return "", ErrNotFound
	}

	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return filepath.Abs(candidate)
		}
	}

	return "", ErrNotFound
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
