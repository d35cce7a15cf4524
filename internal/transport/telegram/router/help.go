package router

import (
	"strings"

	"remindbot/pkg/tgui"
)

const ownerMark = " 🔒"

// helpText renders help for path in Telegram HTML. An empty path lists the
// top-level commands.
func (m *CommandManager) helpText(path []string) string {
	t := m.tree()
	node, full := t.lookup(path)
	switch {
	case node == nil:
		return tgui.Lines(
			tgui.B("Unknown command"),
			tgui.Concat("Send ", tgui.Code("/help"), " for the list."),
		).String()
	case len(full) == 0:
		return helpTop(node).String()
	default:
		return helpNode(node, full).String()
	}
}

func helpTop(root *cmdNode) tgui.H {
	lines := []tgui.H{tgui.B("Commands")}
	for _, word := range root.names() {
		lines = append(lines, entry("/"+word, root.sub(word)))
	}
	lines = append(lines, "", tgui.Concat("Details: ", tgui.Code("/help <command>")))
	return tgui.Lines(lines...)
}

func helpNode(n *cmdNode, full []string) tgui.H {
	lines := []tgui.H{tgui.Code("/" + strings.Join(full, " "))}
	if n.cmd != nil {
		c := n.cmd
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, tgui.Esc(d))
		}
		if c.Access == AccessOwnerOnly {
			lines = append(lines, tgui.I("owner only"))
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", tgui.Code(u))
		}
		if aliases := shortcuts(c); len(aliases) > 0 {
			lines = append(lines, tgui.Esc("also: /"+strings.Join(aliases, ", /")))
		}
	}
	if len(n.children) > 0 {
		lines = append(lines, "")
		for _, word := range n.names() {
			lines = append(lines, entry("/"+strings.Join(append(full[:len(full):len(full)], word), " "), n.sub(word)))
		}
	}
	return tgui.Lines(lines...)
}

func entry(cmd string, n *cmdNode) tgui.H {
	line := tgui.Code(cmd)
	if s := summary(n); s != "" {
		line = tgui.Concat(line, tgui.Esc(" - "+s))
	}
	if n.ownerOnly() {
		line = tgui.Concat(line, ownerMark)
	}
	return line
}

// summary is a command's description, or for a group the words below it.
func summary(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil && strings.TrimSpace(n.cmd.Description) != "" {
		return strings.TrimSpace(n.cmd.Description)
	}
	return strings.Join(n.names(), ", ")
}

// shortcuts lists the one-word forms that also reach c.
func shortcuts(c *Command) []string {
	var out []string
	seen := map[string]bool{}
	if route := splitRoute(c.Route); len(route) > 1 {
		name := menuName(route)
		out = append(out, name)
		seen[name] = true
	}
	for _, a := range c.Aliases {
		if a = strings.TrimSpace(a); a != "" && !seen[a] {
			out = append(out, a)
			seen[a] = true
		}
	}
	return out
}
