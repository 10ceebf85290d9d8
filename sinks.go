package regscan

import (
	"github.com/hazyhaar/regscan/internal/notify"
)

// Notifier delivers the end-of-run digest. Best-effort: delivery
// failures are logged, never escalated.
type Notifier = notify.Notifier
