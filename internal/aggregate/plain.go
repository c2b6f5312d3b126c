package aggregate

import (
	"fmt"
	"strings"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// renderPlain produces the header, date range, total count, then one
// section per event type, each listing "HH:MM - <subject or message>".
func renderPlain(userID string, events []domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event Summary for User %s\n", userID)

	if len(events) == 0 {
		b.WriteString("No events in this period.\n")
		return b.String()
	}

	start, end := dateRange(events)
	fmt.Fprintf(&b, "Period: %s to %s\n", start.Format("2006-01-02 15:04 UTC"), end.Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Total events: %d\n\n", len(events))

	types, byType := groupByType(events)
	for _, t := range types {
		fmt.Fprintf(&b, "[%s]\n", t)
		for _, e := range byType[t] {
			fmt.Fprintf(&b, "%s - %s\n", e.Timestamp.Format("15:04"), excerpt(e))
		}
		b.WriteString("\n")
	}
	return b.String()
}
