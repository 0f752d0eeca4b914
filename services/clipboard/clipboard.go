// Package clipboardsvc provides the clipboards the credential view copies to.
package clipboardsvc

import (
	"sync"

	"github.com/atotto/clipboard"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/credential"
)

var ErrUnsupported = errors.New("no system clipboard available")

var (
	_ credential.Clipboard = System{}
	_ credential.Clipboard = (*Memory)(nil)
)

// System writes to the OS clipboard (xclip, xsel, wl-copy, pbcopy or clip.exe).
type System struct{}

func (System) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	return errors.Wrap(clipboard.WriteAll(text), "system clipboard")
}

func (System) ReadAll() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnsupported
	}
	text, err := clipboard.ReadAll()
	return text, errors.Wrap(err, "system clipboard")
}

// Memory keeps the last copied text in process. Used when no system clipboard is available.
type Memory struct {
	mu   sync.Mutex
	text string
}

func (m *Memory) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

func (m *Memory) ReadAll() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

// Clear forgets the copied text.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.text = ""
	m.mu.Unlock()
}

// Available returns the system clipboard when the platform supports one, the in-process one otherwise.
func Available() credential.Clipboard {
	if clipboard.Unsupported {
		return new(Memory)
	}
	return System{}
}
