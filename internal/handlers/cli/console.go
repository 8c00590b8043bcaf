// Package cli is the terminal front-end: urfave/cli commands over the wallet
// manager, plus a notification view that prints to the console.
package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/gabapcia/dappkit/internal/notification"
)

// Console serializes output shared by commands, wallet event handlers and
// the notification view.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

var _ io.Writer = (*Console)(nil)

// NewConsole writes to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

// Printf writes one formatted message.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c, format, args...)
}

// View returns a notification.View that prints mounts and updates.
func (c *Console) View() notification.View {
	return consoleView{console: c}
}

type consoleView struct {
	console *Console
}

var _ notification.View = consoleView{}

func (v consoleView) Mount(e notification.Element) {
	if e.Kind == notification.KindTransaction {
		v.console.Printf("[%s] %s %s %s\n", e.Status, e.Label, e.ShortHash, e.ExplorerURL)
		return
	}
	v.console.Printf("[%s] %s\n", e.Severity, e.Message)
}

func (v consoleView) Update(e notification.Element) {
	if e.Kind != notification.KindTransaction {
		return
	}
	v.console.Printf("[%s] %s %s\n", e.Status, e.ShortHash, e.StatusText)
}

// Hide and Unmount have nothing to erase on a terminal.
func (consoleView) Hide(string)    {}
func (consoleView) Unmount(string) {}
