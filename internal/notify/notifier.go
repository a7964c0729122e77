// Package notify sends fire-and-forget HTTP notifications for session events
// and keeps track of whether the process was asked to stay alive without an
// attached UI. The primary use case is ntfy.sh, but any HTTP webhook works.
package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
)

// Notifier posts plain-text HTTP notifications and implements
// relay.Lifecycle.
type Notifier struct {
	url          string
	title        string
	onBackground bool
	onDisconnect bool
	client       *http.Client
	logger       *slog.Logger

	mu   sync.Mutex
	held bool
	name string
	wg   sync.WaitGroup
}

// New creates a Notifier. An empty url disables posting; the keep-alive
// state is tracked either way. title is used as the X-Title header; if
// empty, "usbterm" is used instead.
func New(notifURL, title string, onBackground, onDisconnect bool) *Notifier {
	if title == "" {
		title = "usbterm"
	}
	return &Notifier{
		url:          notifURL,
		title:        title,
		onBackground: onBackground,
		onDisconnect: onDisconnect,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       slog.Default(),
	}
}

// SetLogger replaces the logger.
func (n *Notifier) SetLogger(l *slog.Logger) { n.logger = l }

// KeepAlive records that the session is running with no UI attached and
// posts a background notification once per hold.
func (n *Notifier) KeepAlive(name string) {
	n.mu.Lock()
	if n.held {
		n.mu.Unlock()
		return
	}
	n.held = true
	n.name = name
	n.mu.Unlock()

	n.logger.Info("session running in background", "device", name)
	if n.onBackground {
		n.send(fmt.Sprintf("Connected to %s (running in background, reattach to disconnect)", name))
	}
}

// Release clears the keep-alive state.
func (n *Notifier) Release() {
	n.mu.Lock()
	was := n.held
	n.held = false
	n.name = ""
	n.mu.Unlock()
	if was {
		n.logger.Debug("background hold released")
	}
}

// Held reports whether a keep-alive request is active, and for which device.
func (n *Notifier) Held() (bool, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.held, n.name
}

// Hook is a relay.Observer. It posts asynchronously when the connection
// fails or is lost.
func (n *Notifier) Hook(e relay.Event) {
	if !n.onDisconnect {
		return
	}
	switch e.Kind() {
	case relay.EventConnectError:
		n.send("connection failed: " + causeText(e.Cause()))
	case relay.EventIoError:
		n.send("connection lost: " + causeText(e.Cause()))
	}
}

// Wait blocks until in-flight posts finish.
func (n *Notifier) Wait() { n.wg.Wait() }

func causeText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func (n *Notifier) send(message string) {
	if n.url == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.post(message)
	}()
}

// post sends a plain-text POST to the configured URL. Errors are logged at
// debug level so notification failures never interrupt the session.
func (n *Notifier) post(message string) {
	req, err := http.NewRequest(http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Title", n.title)
	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Debug("notification failed", "err", err)
		return
	}
	resp.Body.Close()
}
