// Package notify posts scan opportunities to a Telegram chat.
package notify

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tempedge/internal/edge"
	"tempedge/internal/scan"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends the top opportunities of each scan.
type Telegram struct {
	bot            Sender
	chatID         int64
	topN           int
	maxRetries     int
	retryDelayBase time.Duration
	sleep          func(time.Duration)
}

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, chatID int64, topN int) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return newTelegram(bot, chatID, topN), nil
}

func newTelegram(bot Sender, chatID int64, topN int) *Telegram {
	if topN <= 0 {
		topN = 5
	}
	return &Telegram{
		bot:            bot,
		chatID:         chatID,
		topN:           topN,
		maxRetries:     3,
		retryDelayBase: time.Second,
		sleep:          time.Sleep,
	}
}

// Notify posts the scan's best opportunities. Scans without opportunities
// send nothing.
func (t *Telegram) Notify(res scan.Result) error {
	if len(res.Opportunities) == 0 {
		return nil
	}
	return t.sendMarkdownV2(formatMessage(res, t.topN))
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (t *Telegram) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < t.maxRetries-1 {
			t.sleep(t.retryDelayBase * time.Duration(i+1))
		}
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

func formatMessage(res scan.Result, topN int) string {
	opps := res.Opportunities
	if len(opps) > topN {
		opps = opps[:topN]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌡 *Temperature edges* \\(%d found\\)\n", len(res.Opportunities))
	if !res.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(res.FinishedAt.UTC().Format("2006-01-02 15:04 MST")))
	}
	b.WriteString("\n")

	for i, o := range opps {
		fmt.Fprintf(&b, "%d\\. *%s* %s on %s\n", i+1,
			escapeMarkdownV2(o.City), escapeMarkdownV2(o.Label), escapeMarkdownV2(o.TargetDate))
		fmt.Fprintf(&b, "   %s %s: fair %s vs price %s, edge *%s*\n",
			sideEmoji(o.Side),
			escapeMarkdownV2(strings.ToUpper(string(o.Side))),
			escapeMarkdownV2(fmt.Sprintf("%.1f%%", o.FairProb*100)),
			escapeMarkdownV2(fmt.Sprintf("%.1f%%", o.Price*100)),
			escapeMarkdownV2(fmt.Sprintf("%.1f%%", o.Edge*100)),
		)
		fmt.Fprintf(&b, "   forecast high %s, %s confidence\n",
			escapeMarkdownV2(fmt.Sprintf("%.0f°F", o.ForecastHigh)),
			escapeMarkdownV2(o.Confidence))
	}
	return b.String()
}

func sideEmoji(s edge.Side) string {
	if s == edge.No {
		return "📉"
	}
	return "📈"
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
