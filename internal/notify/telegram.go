package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
)

// TelegramNotifier delivers alert notifications as Telegram messages.
type TelegramNotifier struct {
	api           *tgbotapi.BotAPI
	defaultChatID int64
	log           zerolog.Logger
}

// NewTelegramNotifier creates a notifier for the given bot token.
// defaultChatID is used for alerts that carry no chat of their own.
func NewTelegramNotifier(token string, defaultChatID int64, log zerolog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{
		api:           api,
		defaultChatID: defaultChatID,
		log:           log.With().Str("component", "telegram_notifier").Logger(),
	}, nil
}

// Deliver sends one message for a triggered alert.
func (n *TelegramNotifier) Deliver(ctx context.Context, job domain.NotificationJob) error {
	chatID := job.ChatID
	if chatID == 0 {
		chatID = n.defaultChatID
	}
	if chatID == 0 {
		return fmt.Errorf("no chat id for alert %s", job.AlertID)
	}

	msg := tgbotapi.NewMessage(chatID, formatAlertMessage(job))
	msg.DisableWebPagePreview = true

	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message for alert %s: %w", job.AlertID, err)
	}

	n.log.Info().
		Str("alert_id", job.AlertID).
		Str("ticker", job.Ticker).
		Int64("chat_id", chatID).
		Msg("Delivered alert notification")

	return nil
}

// formatAlertMessage renders the notification text.
func formatAlertMessage(job domain.NotificationJob) string {
	direction := "rose above"
	if job.Type == domain.AlertPriceBelow {
		direction = "fell below"
	}

	return fmt.Sprintf(`🚨 Price Alert

%s (%s) %s your threshold.

Threshold: %.2f
Current price: %.2f
Triggered at: %s`,
		job.CompanyName,
		job.Ticker,
		direction,
		job.ConditionValue,
		job.CurrentPrice,
		job.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"))
}

// LogNotifier writes notifications to the log instead of an external
// sink. Used in development when no bot token is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "log_notifier").Logger()}
}

// Deliver logs the notification and always succeeds.
func (n *LogNotifier) Deliver(ctx context.Context, job domain.NotificationJob) error {
	n.log.Info().
		Str("alert_id", job.AlertID).
		Str("ticker", job.Ticker).
		Str("alert_type", string(job.Type)).
		Float64("threshold", job.ConditionValue).
		Float64("current_price", job.CurrentPrice).
		Msg("ALERT (log-only delivery)")
	return nil
}
