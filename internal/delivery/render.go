package delivery

import (
	"strings"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
)

// renderText formats an item as an outgoing message. Attribution goes on
// its own line so the quote body stays clean.
func renderText(it content.ContentItem) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(it.Text))

	author := strings.TrimSpace(it.Author)
	source := strings.TrimSpace(it.Source)
	switch {
	case author != "" && source != "":
		b.WriteString("\n\n— ")
		b.WriteString(author)
		b.WriteString(" (")
		b.WriteString(source)
		b.WriteString(")")
	case author != "":
		b.WriteString("\n\n— ")
		b.WriteString(author)
	case source != "":
		b.WriteString("\n\n(")
		b.WriteString(source)
		b.WriteString(")")
	}
	return b.String()
}
