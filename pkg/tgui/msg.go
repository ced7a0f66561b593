package tgui

import (
	"context"
	"strings"

	kit "eventbot/internal/transport"
)

// Message is rendered text plus send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

func (m Message) Send(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	return s.SendText(ctx, to, m.Text, m.Opt)
}

// Builder composes an HTML message line by line. Text arguments are
// escaped; use RawLine for prepared HTML.
type Builder struct {
	lines          []string
	kb             *Inline
	disablePreview bool
}

func New() *Builder { return &Builder{disablePreview: true} }

func (b *Builder) Inline(kb *Inline) *Builder {
	b.kb = kb
	return b
}

func (b *Builder) Title(emoji, title string) *Builder {
	t := wrap("b", Esc(strings.TrimSpace(title))).String()
	if e := strings.TrimSpace(emoji); e != "" {
		t = Esc(e).String() + " " + t
	}
	b.lines = append(b.lines, t)
	return b
}

func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

func (b *Builder) RawLine(h H) *Builder {
	b.lines = append(b.lines, string(h))
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

// KV adds "• <b>key</b>: value".
func (b *Builder) KV(key string, value any) *Builder {
	b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(toString(value)).String())
	return b
}

func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.lines = append(b.lines, "• "+Esc(it).String())
		}
	}
	return b
}

func (b *Builder) Build() Message {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: b.disablePreview}
	if b.kb != nil && b.kb.Rows() > 0 {
		opt.ReplyMarkupAdapter = b.kb.Markup()
	}
	return Message{Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"), Opt: opt}
}
