package tgui

import (
	"strings"
	"testing"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"привет", 2, "пр…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q,%d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestDataFormat(t *testing.T) {
	t.Parallel()

	if got := Data("menu", "wishlist", ""); got != "menu:wishlist" {
		t.Fatalf("got %q", got)
	}
	if got := Data(" start ", "remember", "yes"); got != "start:remember:yes" {
		t.Fatalf("got %q", got)
	}
	if err := CheckData(strings.Repeat("x", MaxCallbackDataLen+1)); err != ErrCallbackDataTooLong {
		t.Fatalf("err=%v", err)
	}
}

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()

	kb := NewInline().Grid(2, Btn("a", "g:a"), Btn("b", "g:b"), Btn("c", "g:c"))
	msg := New().Title("📊", "Stats <all>").KV("users", 3).Line("a & b").Inline(kb).Build()

	want := "📊 <b>Stats &lt;all&gt;</b>\n• <b>users</b>: 3\na &amp; b"
	if msg.Text != want {
		t.Fatalf("text=%q", msg.Text)
	}
	if msg.Opt.ParseMode != "HTML" || msg.Opt.ReplyMarkupAdapter == nil {
		t.Fatalf("opt=%+v", msg.Opt)
	}
	if kb.Rows() != 2 {
		t.Fatalf("rows=%d", kb.Rows())
	}
}
