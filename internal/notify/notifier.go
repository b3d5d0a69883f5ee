package notify

import (
	"log"

	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// LogNotifier is the default push-notification collaborator: it records the
// event and does nothing else. A real deployment swaps in an implementation
// backed by the platform's push service; the dispatcher only relies on
// Notify being fire-and-forget.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the notification event. Never blocks, never fails.
func (n *LogNotifier) Notify(event *types.NotificationEvent) {
	log.Printf("Push notification: kind=%s session=%s sender=%s", event.Kind, event.SessionID, event.SenderID)
}
