package router

import (
	"strings"

	"github.com/google/uuid"
)

func newReqID() string {
	id := uuid.NewString()
	return id[:8]
}

// tokenizeCommandLine splits text on whitespace, honoring quotes and
// backslash escapes: /cmd a "b c" --k=v
func tokenizeCommandLine(s string) []string {
	var (
		out   []string
		buf   strings.Builder
		quote rune
		esc   bool
		open  bool
	)
	flush := func() {
		if open {
			out = append(out, buf.String())
			buf.Reset()
			open = false
		}
	}
	for _, ch := range strings.TrimSpace(s) {
		switch {
		case esc:
			buf.WriteRune(ch)
			esc = false
		case ch == '\\':
			esc, open = true, true
		case quote != 0:
			if ch == quote {
				quote = 0
				continue
			}
			buf.WriteRune(ch)
		case ch == '"' || ch == '\'':
			quote, open = ch, true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteRune(ch)
			open = true
		}
	}
	flush()
	return out
}

// parseFlags splits args into positionals and --k=v / --k v / --flag
// style flags. A bare "-" or negative number stays positional.
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "--") || len(a) == 2 {
			pos = append(pos, a)
			continue
		}
		key := a[2:]
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			flags[key] = args[i+1]
			i++
			continue
		}
		bools[key] = true
	}
	return pos, flags, bools
}

// commandWord extracts the command name from "/name@botname".
func commandWord(tok string) string {
	word := strings.TrimPrefix(tok, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word)
}
