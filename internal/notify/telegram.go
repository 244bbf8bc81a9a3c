// Package notify sends spike alerts to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/polyinsider/spikewatch/internal/store"
)

const (
	// repeatTTL resets the per-outcome repeat counter after this much quiet
	repeatTTL = time.Hour

	maxQuestionLen = 100
	eventBaseURL   = "https://polymarket.com/event/"
)

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type repeatKey struct {
	marketID string
	outcome  string
}

type repeatEntry struct {
	count    int
	lastSeen time.Time
}

// Telegram delivers alerts as HTML messages with a link button.
type Telegram struct {
	bot        sender
	chatID     int64
	log        *slog.Logger
	now        func() time.Time
	maxRetries int
	retryDelay time.Duration

	mu      sync.Mutex
	repeats map[repeatKey]*repeatEntry
}

// NewTelegram connects to the bot API with token and targets chatID.
func NewTelegram(token, chatID string, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	t, err := newTelegram(bot, chatID, logger)
	if err != nil {
		return nil, err
	}
	t.log.Info("telegram_enabled", "bot", bot.Self.UserName, "chat_id", chatID)
	return t, nil
}

func newTelegram(bot sender, chatID string, logger *slog.Logger) (*Telegram, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		bot:        bot,
		chatID:     id,
		log:        logger,
		now:        time.Now,
		maxRetries: 3,
		retryDelay: time.Second,
		repeats:    make(map[repeatKey]*repeatEntry),
	}, nil
}

// Name implements alert.Sink.
func (t *Telegram) Name() string { return "telegram" }

// Deliver formats alert and sends it, retrying with linear backoff until ctx ends.
func (t *Telegram) Deliver(ctx context.Context, alert store.SpikeAlert) error {
	repeat := t.nextRepeat(alert.MarketID, alert.Outcome)

	msg := tgbotapi.NewMessage(t.chatID, FormatSpike(alert, repeat))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if url := EventURL(alert.EventSlug); url != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("📊 Open on Polymarket", url),
			),
		)
	}

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		_, err := t.bot.Send(msg)
		if err == nil {
			t.log.Debug("telegram_sent", "alert_id", alert.ID, "repeat", repeat)
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return fmt.Errorf("telegram send: %w", ctx.Err())
		case <-time.After(t.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

// nextRepeat increments and returns the repeat count for a market outcome.
func (t *Telegram) nextRepeat(marketID, outcome string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := repeatKey{marketID: marketID, outcome: outcome}
	e, ok := t.repeats[key]
	if !ok {
		e = &repeatEntry{}
		t.repeats[key] = e
	}
	if now.Sub(e.lastSeen) > repeatTTL {
		e.count = 0
	}
	e.count++
	e.lastSeen = now

	for k, other := range t.repeats {
		if now.Sub(other.lastSeen) > repeatTTL {
			delete(t.repeats, k)
		}
	}
	return e.count
}

// FormatSpike renders the HTML message body. repeat > 1 adds an "xN" suffix.
func FormatSpike(a store.SpikeAlert, repeat int) string {
	counter := ""
	if repeat > 1 {
		counter = fmt.Sprintf(" x%d", repeat)
	}
	question := a.Question
	if question == "" {
		question = "Unknown"
	}
	return fmt.Sprintf(
		"%s <b>VOLUME SPIKE%s</b>\n📊 %s\n🎯 Buy <b>%s</b> @ $%.2f\n💰 %d trades • $%s\n\n#VolumeSpike",
		StrengthEmoji(a.AmountUSD),
		counter,
		html.EscapeString(truncate(question, maxQuestionLen)),
		html.EscapeString(a.Outcome),
		a.Price,
		a.Count,
		humanize.Comma(int64(math.Round(a.AmountUSD))),
	)
}

// StrengthEmoji grades a spike by its window USD total.
func StrengthEmoji(amountUSD float64) string {
	switch {
	case amountUSD >= 30000:
		return "🚨🚨🚨"
	case amountUSD >= 20000:
		return "🚨🚨"
	case amountUSD >= 10000:
		return "🚨"
	default:
		return "📈"
	}
}

// EventURL links to the event page, or "" without a slug.
func EventURL(slug string) string {
	if slug == "" {
		return ""
	}
	return eventBaseURL + slug
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
