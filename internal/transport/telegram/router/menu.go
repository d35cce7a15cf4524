package router

import (
	"strings"

	kit "remindbot/internal/transport"
)

const (
	maxMenuCommand     = 32
	maxMenuDescription = 256
	maxMenuEntries     = 100
)

// sanitizeTelegramCommand maps a route or alias onto Telegram's command
// alphabet, [a-z0-9_]{1,32}, starting with a letter.
func sanitizeTelegramCommand(s string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
		case r == '_', r == '-', r == '/', r == ' ', r == '\t':
			sep = true
		}
	}
	out := b.String()
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > maxMenuCommand {
		out = strings.TrimRight(out[:maxMenuCommand], "_")
	}
	return out
}

// menuName is the one-word form of a route: "remind add" -> "remind_add".
func menuName(route []string) string {
	return sanitizeTelegramCommand(strings.Join(route, "_"))
}

// menuCommands lists the top-level words first (they carry the
// autocompletion), then one entry per multi-word route.
func menuCommands(t *commandTree) []kit.BotCommand {
	seen := map[string]bool{}
	var out []kit.BotCommand
	add := func(name, desc string) {
		if name == "" || seen[name] || len(out) >= maxMenuEntries {
			return
		}
		seen[name] = true
		desc = strings.Join(strings.Fields(desc), " ")
		if desc == "" {
			desc = name
		}
		if len(desc) > maxMenuDescription {
			desc = desc[:maxMenuDescription]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
	}

	for _, word := range t.root.names() {
		add(sanitizeTelegramCommand(word), summary(t.root.sub(word)))
	}
	for _, c := range t.root.commands() {
		if route := splitRoute(c.Route); len(route) > 1 {
			add(menuName(route), c.Description)
		}
	}
	return out
}
