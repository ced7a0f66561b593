package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Button is an inline keyboard button.
type Button = tele.Btn

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Grid appends buttons cols per row.
func (i *Inline) Grid(cols int, btn ...tele.Btn) *Inline {
	if cols <= 0 {
		cols = 1
	}
	for len(btn) > 0 {
		n := min(cols, len(btn))
		i.Row(btn[:n]...)
		btn = btn[n:]
	}
	return i
}

func (i *Inline) Rows() int { return len(i.rows) }

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn is a callback button; data is used verbatim (see Data).
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// YesNo is a one-row two-button keyboard.
func YesNo(yes, no tele.Btn) *Inline {
	return NewInline().Row(yes, no)
}
