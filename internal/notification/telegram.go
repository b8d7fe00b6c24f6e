package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
)

var levelIcon = map[AlertLevel]string{
	AlertInfo:     "ℹ️",
	AlertWarning:  "⚠️",
	AlertCritical: "🚨",
}

// MarkdownV2 reserves these characters outside of entities.
var markdownEscaper = strings.NewReplacer(
	`_`, `\_`, `*`, `\*`, `[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`,
	`~`, `\~`, "`", "\\`", `>`, `\>`, `#`, `\#`, `+`, `\+`, `-`, `\-`,
	`=`, `\=`, `|`, `\|`, `{`, `\{`, `}`, `\}`, `.`, `\.`, `!`, `\!`,
)

// TelegramNotifier posts alerts to a chat through the Bot API.
type TelegramNotifier struct {
	baseURL string
	token   string
	chatID  string
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{baseURL: "https://api.telegram.org", token: token, chatID: chatID}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := map[string]any{
		"chat_id":    t.chatID,
		"text":       formatTelegram(alert),
		"parse_mode": "MarkdownV2",
	}
	endpoint := t.baseURL + "/bot" + t.token + "/sendMessage"
	if err := postJSON(ctx, defaultClient, endpoint, msg); err != nil {
		// the endpoint embeds the token, keep it out of the error
		return fmt.Errorf("telegram %s: %w", alert.Title, err)
	}
	log.Printf("[telegram] delivered %q", alert.Title)
	return nil
}

// formatTelegram renders a bold title line and the message body.
func formatTelegram(a Alert) string {
	icon, ok := levelIcon[a.Level]
	if !ok {
		icon = levelIcon[AlertInfo]
	}
	title := a.Title
	if a.Symbol != "" && !strings.HasPrefix(title, a.Symbol) {
		title = a.Symbol + ": " + title
	}

	var b strings.Builder
	b.WriteString(icon)
	b.WriteString(" *")
	b.WriteString(escapeMarkdown(title))
	b.WriteString("*")
	if a.Message != "" {
		b.WriteString("\n\n")
		b.WriteString(escapeMarkdown(a.Message))
	}
	return b.String()
}

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
