// Package notifier pushes import activity to external services (Discord,
// Telegram, ntfy, email, anything shoutrrr speaks) configured as raw
// shoutrrr URLs.
package notifier

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/mescon/Linkarr/internal/domain"
	"github.com/mescon/Linkarr/internal/eventbus"
	"github.com/mescon/Linkarr/internal/logger"
)

// Notifier subscribes to pipeline events and forwards human-readable
// messages to every configured service URL, with an optional per-URL
// throttle to keep bulk imports from flooding a channel.
type Notifier struct {
	bus      eventbus.Publisher
	urls     []string
	throttle time.Duration

	// send is swappable in tests; defaults to shoutrrr.Send.
	send func(url, message string) error

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewNotifier(bus eventbus.Publisher, urls []string, throttle time.Duration) *Notifier {
	return &Notifier{
		bus:      bus,
		urls:     urls,
		throttle: throttle,
		send:     shoutrrr.Send,
		lastSent: make(map[string]time.Time),
	}
}

// Start subscribes to the events worth telling a human about. No-op when no
// URLs are configured.
func (n *Notifier) Start() {
	if len(n.urls) == 0 {
		logger.Infof("Notifier disabled: no notification URLs configured")
		return
	}

	n.bus.Subscribe(domain.FileLinked, n.handleLinked)
	n.bus.Subscribe(domain.FileUpgraded, n.handleUpgraded)
	n.bus.Subscribe(domain.PathAbandoned, n.handleAbandoned)
	logger.Infof("Notifier started with %d service URL(s)", len(n.urls))
}

func (n *Notifier) handleLinked(e domain.Event) {
	dest := e.GetStringOr("destination", "?")
	title := e.GetStringOr("title", filepath.Base(dest))
	quality := e.GetStringOr("quality", "unknown")
	n.notify(fmt.Sprintf("Imported: %s [%s]\n%s", title, quality, dest))
}

func (n *Notifier) handleUpgraded(e domain.Event) {
	dest := e.GetStringOr("destination", "?")
	title := e.GetStringOr("title", filepath.Base(dest))
	quality := e.GetStringOr("quality", "unknown")
	n.notify(fmt.Sprintf("Upgraded: %s to %s\n%s", title, quality, dest))
}

func (n *Notifier) handleAbandoned(e domain.Event) {
	path := e.GetStringOr("path", "?")
	attempts := e.GetInt64Or("attempts", 0)
	n.notify(fmt.Sprintf("Gave up on %s after %d stability checks", path, attempts))
}

// notify fans the message out to all URLs, honoring the per-URL throttle, and
// records the delivery outcome on the event bus.
func (n *Notifier) notify(message string) {
	for _, url := range n.urls {
		if n.throttled(url) {
			logger.Debugf("Notification throttled for %s", redact(url))
			continue
		}

		if err := n.send(url, message); err != nil {
			logger.Errorf("Notification to %s failed: %v", redact(url), err)
			n.publishOutcome(domain.NotificationFailed, url, message, err)
			continue
		}
		logger.Debugf("Notification sent to %s", redact(url))
		n.publishOutcome(domain.NotificationSent, url, message, nil)
	}
}

func (n *Notifier) throttled(url string) bool {
	if n.throttle <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[url]; ok && time.Since(last) < n.throttle {
		return true
	}
	n.lastSent[url] = time.Now()
	return false
}

func (n *Notifier) publishOutcome(eventType domain.EventType, url, message string, sendErr error) {
	data := map[string]interface{}{
		"service": redact(url),
		"message": message,
	}
	if sendErr != nil {
		data["error"] = sendErr.Error()
	}
	err := n.bus.Publish(domain.Event{
		AggregateType: "notification",
		AggregateID:   redact(url),
		EventType:     eventType,
		EventData:     data,
	})
	if err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}

// redact reduces a shoutrrr URL to its scheme so tokens never reach logs or
// the events table.
func redact(url string) string {
	for i := 0; i < len(url); i++ {
		if url[i] == ':' {
			return url[:i]
		}
	}
	return "service"
}
