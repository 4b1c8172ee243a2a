package notify

import "strings"

// Backticks and asterisks are left alone so messages can carry code blocks and bold text.
const markdownV2Special = `_[]()~>#+-=|{}.!`

// EscapeMarkdownV2 escapes the characters Telegram reserves in MarkdownV2 text.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
