package history

import (
	"bufio"
	"errors"
	"io/fs"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// History is the list of command lines entered in past and current sessions.
type History struct {
	fs       afero.Fs
	items    []string
	file     string
	maxItems int
	mu       sync.Mutex
}

// New loads the history kept in file. A maxItems of zero disables
// persistence: lines are neither loaded nor written back.
func New(fsys afero.Fs, file string, maxItems int) (*History, error) {
	h := &History{
		fs:       fsys,
		file:     file,
		maxItems: maxItems,
	}
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

// Add appends item and writes the trimmed list back to disk.
func (h *History) Add(item string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxItems == 0 || strings.TrimSpace(item) == "" {
		return nil
	}

	h.items = append(h.items, item)
	h.trim()
	return h.save()
}

func (h *History) GetAll() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string{}, h.items...)
}

func (h *History) trim() {
	if len(h.items) > h.maxItems {
		h.items = h.items[len(h.items)-h.maxItems:]
	}
}

func (h *History) load() error {
	if h.maxItems == 0 || h.file == "" {
		return nil
	}

	file, err := h.fs.Open(h.file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		h.items = append(h.items, scanner.Text())
	}
	h.trim()
	return scanner.Err()
}

func (h *History) save() error {
	if h.file == "" {
		return nil
	}

	file, err := h.fs.Create(h.file)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range h.items {
		if _, err := writer.WriteString(item + "\n"); err != nil {
			return err
		}
	}
	return writer.Flush()
}
