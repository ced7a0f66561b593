package router

import (
	"html"
	"strings"
)

// helpText renders HTML help for the top level or for one command path.
// Operator commands are listed only to operators.
func (m *CommandManager) helpText(path []string, operator bool) string {
	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		p = commandWord(p)
		next, ok := cur.child(p)
		if !ok {
			if leaf, ok := alias[p]; ok && leaf.cmd != nil {
				cur, full = leaf, splitRoute(leaf.cmd.Route)
				break
			}
			return "❓ <b>Unknown command</b>\nType <code>/help</code> for the list."
		}
		cur = next
		full = append(full, p)
	}
	if len(full) == 0 {
		return helpTop(root, operator)
	}
	return helpNode(cur, full, operator)
}

func helpTop(root *cmdNode, operator bool) string {
	lines := []string{"📚 <b>Commands</b>", ""}
	for _, name := range root.childNames() {
		n, _ := root.child(name)
		if !n.visible() || (n.operatorOnly() && !operator) {
			continue
		}
		lines = append(lines, helpRow("/"+name, n))
	}
	return strings.Join(lines, "\n")
}

func helpRow(cmd string, n *cmdNode) string {
	row := "• <code>" + html.EscapeString(cmd) + "</code>"
	if n.operatorOnly() {
		row = "• 🔒 <code>" + html.EscapeString(cmd) + "</code>"
	}
	if d := describe(n); d != "" {
		row += " - " + html.EscapeString(d)
	}
	return row
}

func helpNode(n *cmdNode, full []string, operator bool) string {
	lines := []string{"📚 <code>/" + html.EscapeString(strings.Join(full, " ")) + "</code>"}
	if c := n.cmd; c != nil {
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, html.EscapeString(d))
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
		}
	}
	var subs []string
	for _, name := range n.childNames() {
		child, _ := n.child(name)
		if !child.visible() || (child.operatorOnly() && !operator) {
			continue
		}
		subs = append(subs, helpRow("/"+strings.Join(append(full, name), " "), child))
	}
	if len(subs) > 0 {
		lines = append(lines, "", "<b>Subcommands</b>")
		lines = append(lines, subs...)
	}
	return strings.Join(lines, "\n")
}

func describe(n *cmdNode) string {
	if n.cmd != nil {
		return strings.TrimSpace(n.cmd.Description)
	}
	kids := n.childNames()
	if len(kids) > 3 {
		kids = append(kids[:3], "…")
	}
	return "subcommands: " + strings.Join(kids, ", ")
}
