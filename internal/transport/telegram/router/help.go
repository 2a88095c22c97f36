package router

import (
	"context"
	"html"
	"strings"

	kit "github.com/n00bc0der89/MotivationCoach-sub000/internal/transport"
)

func (r *Router) helpCommand() Command {
	return Command{
		Name:        "help",
		Aliases:     []string{"h", "start"},
		Description: "list available commands",
		Usage:       "/help [cmd]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			text := r.helpText(req.Args)
			_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return err
		},
	}
}

// helpText renders Telegram-friendly help in HTML parse mode. With an
// argument it shows the detail view for that command.
func (r *Router) helpText(args []string) string {
	if len(args) > 0 {
		word := sanitizeCommandName(args[0])
		if c, ok := r.lookup(word); ok {
			return helpDetailHTML(c)
		}
		return helpUnknownHTML()
	}

	lines := []string{
		"📚 <b>Commands</b>",
		"Use <code>/help &lt;cmd&gt;</code> for details.",
		"",
	}
	for _, c := range r.commandList() {
		row := "/" + html.EscapeString(c.Name)
		if c.Description != "" {
			row += " — " + html.EscapeString(c.Description)
		}
		if c.Access == AccessOwnerOnly {
			row += " 🔒"
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}

func helpUnknownHTML() string {
	return strings.Join([]string{
		"❓ <b>Unknown command</b>",
		"Try <code>/help</code> for the list.",
	}, "\n")
}

func helpDetailHTML(c Command) string {
	lines := []string{"<b>/" + html.EscapeString(c.Name) + "</b>"}
	if c.Description != "" {
		lines = append(lines, html.EscapeString(c.Description))
	}
	if c.Usage != "" {
		lines = append(lines, "Usage: <code>"+html.EscapeString(c.Usage)+"</code>")
	}
	if len(c.Aliases) > 0 {
		lines = append(lines, "Aliases: "+html.EscapeString(strings.Join(c.Aliases, ", ")))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 owner only")
	}
	return strings.Join(lines, "\n")
}
