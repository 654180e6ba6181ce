package telegram

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mercato/internal/events"
	"mercato/pkg/errors"
	"mercato/pkg/logger"
)

// Notifier forwards terminal negotiation events to a Telegram chat.
// It consumes the engine's event stream as an ordinary subscriber, so a
// slow or failing Telegram API can never block the round loop.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *logger.Logger
}

// NewNotifier creates a notifier for the given bot token and chat
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}

	return &Notifier{
		bot:    bot,
		chatID: chatID,
		log:    logger.Get().With("component", "telegram_notifier"),
	}, nil
}

// Start consumes events until the channel closes or ctx is cancelled
func (n *Notifier) Start(ctx context.Context, sub <-chan events.Event) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub:
				if !ok {
					return
				}
				if !e.Type.Terminal() {
					continue
				}
				n.notify(e)
			}
		}
	}()
}

func (n *Notifier) notify(e events.Event) {
	var text string
	switch e.Type {
	case events.TypeNegotiationCompleted:
		text = fmt.Sprintf("✅ Negotiation %s completed\n%s", shortID(e.SessionID.String()), e.Message)
		if e.Offer != nil {
			text += fmt.Sprintf("\nTotal: %s %s",
				e.Offer.Currency, humanize.CommafWithDigits(e.Offer.TotalPrice().InexactFloat64(), 2))
		}
	case events.TypeNegotiationFailed:
		text = fmt.Sprintf("❌ Negotiation %s failed\n%s", shortID(e.SessionID.String()), e.Message)
	default:
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warnw("failed to send telegram notification",
			"session_id", e.SessionID,
			"error", err,
		)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
