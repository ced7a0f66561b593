package router

import (
	"sort"
	"strings"

	kit "eventbot/internal/transport"
)

// sanitizeTelegramCommand maps s onto Telegram's command charset
// [a-z0-9_]{1,32}. Separators become underscores, anything else is dropped.
func sanitizeTelegramCommand(s string) string {
	var b strings.Builder
	under := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			under = false
		case r == '_' || r == '-' || r == ' ' || r == '/':
			if b.Len() > 0 && !under {
				b.WriteByte('_')
				under = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// telegramCommandNameFromRoute joins a route into one menu command:
// ["wishlist","add"] -> "wishlist_add".
func telegramCommandNameFromRoute(route []string) (string, bool) {
	out := sanitizeTelegramCommand(strings.Join(route, "_"))
	return out, out != ""
}

// buildTelegramMenuCommands lists public commands only; operator commands
// are reachable through /admin.
func buildTelegramMenuCommands(root *cmdNode) []kit.BotCommand {
	var out []kit.BotCommand
	var walk func(n *cmdNode, path []string)
	walk = func(n *cmdNode, path []string) {
		if n.cmd != nil && !n.cmd.Hidden && n.cmd.Access == AccessEveryone {
			if name, ok := telegramCommandNameFromRoute(path); ok {
				desc := strings.ReplaceAll(strings.TrimSpace(n.cmd.Description), "\n", " ")
				out = append(out, kit.BotCommand{Command: name, Description: desc})
			}
		}
		for _, name := range n.childNames() {
			c, _ := n.child(name)
			walk(c, append(path, name))
		}
	}
	walk(root, nil)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}
