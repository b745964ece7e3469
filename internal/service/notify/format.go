package notify

import (
	"fmt"
	"time"

	"NewsSignal/internal/domain/models"
)

// Format renders an event as the single alert text every sink receives.
// Only the first reason is shown.
func Format(ev models.NotificationEvent) string {
	reason := ""
	if len(ev.Reasons) > 0 {
		reason = ev.Reasons[0]
	}
	return fmt.Sprintf("*NewsSignal alert:* *%s* (%.2f)\nReason: %s\n@ %s",
		ev.Decision, ev.Confidence, reason, ev.Timestamp.UTC().Format(time.RFC3339))
}
