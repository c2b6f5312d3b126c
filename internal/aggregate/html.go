package aggregate

import (
	"fmt"
	"html"
	"strings"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// renderHTML produces a self-contained HTML document with a single table.
// Every event field is HTML-escaped before being embedded.
func renderHTML(events []domain.Event) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">\n")
	b.WriteString("<style>table{border-collapse:collapse;width:100%}")
	b.WriteString("th,td{border:1px solid #999;padding:4px 8px;text-align:left}</style>\n")
	b.WriteString("</head><body>\n<table>\n")
	b.WriteString("<tr><th>Timestamp</th><th>Event ID</th><th>Type</th><th>Subject</th></tr>\n")

	for _, e := range events {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(e.Timestamp.UTC().Format("2006-01-02T15:04Z")),
			html.EscapeString(e.EventID),
			html.EscapeString(string(e.EventType)),
			html.EscapeString(e.Subject),
		)
	}

	b.WriteString("</table>\n</body></html>\n")
	return b.String()
}
