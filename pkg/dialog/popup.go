package dialog

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"
)

// Popup is an opened authorization window. The dialog polls Closed to
// detect completion and force-closes it on timeout.
type Popup interface {
	Closed() bool
	Close()
}

// PopupOpener opens the provider authorization page. Implementations return
// ErrPopupBlocked when the window could not be opened.
type PopupOpener interface {
	Open(url string, width, height int) (Popup, error)
}

// BrowserOpener launches the system browser. The external browser cannot
// report closure, so completion relies on the status poll timing out or the
// caller marking the popup done.
type BrowserOpener struct{}

func (BrowserOpener) Open(url string, _, _ int) (Popup, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPopupBlocked, err)
	}
	return &browserPopup{}, nil
}

type browserPopup struct {
	mu     sync.Mutex
	closed bool
}

func (p *browserPopup) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *browserPopup) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
