// Package tgui holds small Telegram UI helpers: inline keyboards, callback
// data in the "group:action:payload" format and an HTML message builder that
// escapes by default.
package tgui
