package chatui

import (
	"html"
	"strings"
)

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
// Values of type H should be treated as already-escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// JoinH joins safe HTML parts with sep, skipping blank parts.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}
