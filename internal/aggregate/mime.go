package aggregate

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// renderMIME produces a multipart/mixed message: part 1 is the plain-text
// summary, parts 2..N partition events by type with an inline attachment
// per type. The boundary is generated fresh by multipart.Writer on every
// call.
func renderMIME(userID string, events []domain.Event) (body string, contentType string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	summaryHeader := textproto.MIMEHeader{}
	summaryHeader.Set("Content-Type", "text/plain; charset=utf-8")
	summaryHeader.Set("Content-Disposition", "inline")
	if part, err := w.CreatePart(summaryHeader); err == nil {
		part.Write([]byte(renderPlain(userID, events)))
	}

	types, byType := groupByType(events)
	for _, t := range types {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "text/plain; charset=utf-8")
		header.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s_events.txt"`, t))
		part, err := w.CreatePart(header)
		if err != nil {
			continue
		}
		for _, e := range byType[t] {
			fmt.Fprintf(part, "%s - %s\n", e.Timestamp.Format("15:04"), excerpt(e))
		}
	}

	w.Close()
	return buf.String(), fmt.Sprintf("multipart/mixed; boundary=%s", w.Boundary())
}
