package interfaces

import (
	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// Notifier is the external push-notification collaborator. Notify is
// fire-and-forget: implementations must not block the caller and failures
// are theirs to log.
type Notifier interface {
	Notify(event *types.NotificationEvent)
}
