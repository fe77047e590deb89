package notify

import (
	"fmt"

	"trackmirror/internal/config"
	"trackmirror/internal/events"
	"trackmirror/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// messageSender is the subset of the Telegram bot API the alerter needs.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter pushes a Telegram message to the configured operator chats when a
// sync run fails or completes with errors.
type Alerter struct {
	sender  messageSender
	chatIDs []int64
	logger  zerolog.Logger
}

func NewAlerter(cfg config.AlertsConfig, logger zerolog.Logger) (*Alerter, error) {
	if cfg.TelegramToken == "" || len(cfg.ChatIDs) == 0 {
		return nil, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return newAlerter(api, cfg.ChatIDs, logger), nil
}

func newAlerter(sender messageSender, chatIDs []int64, logger zerolog.Logger) *Alerter {
	return &Alerter{
		sender:  sender,
		chatIDs: chatIDs,
		logger:  logger.With().Str("component", "alerter").Logger(),
	}
}

// Attach subscribes the alerter to sync failure events. A nil alerter is a
// valid no-op, so callers do not have to branch on configuration.
func (a *Alerter) Attach(bus *events.EventBus) {
	if a == nil || bus == nil {
		return
	}
	bus.Subscribe(events.EventSyncFailed, a.handleSyncFailed)
}

func (a *Alerter) handleSyncFailed(event *events.Event) error {
	payload, err := events.DecodeSyncPayload(event)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to decode sync event payload")
		return err
	}

	text := formatFailure(payload)
	for _, chatID := range a.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := a.sender.Send(msg); err != nil {
			a.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send alert")
		}
	}
	return nil
}

func formatFailure(payload events.SyncEventPayload) string {
	icon := "❌"
	title := "Sync failed"
	if payload.Status == models.SyncStatusPartial {
		icon = "⚠️"
		title = "Sync completed with errors"
	}

	text := fmt.Sprintf("%s %s\n\nTrigger: %s\nItems synced: %d\nItems failed: %d\nDuration: %dms",
		icon, title, payload.TriggerType, payload.ItemsSynced, payload.ItemsFailed, payload.DurationMs)
	if payload.ErrorCode != "" {
		text += fmt.Sprintf("\nError: [%s] %s", payload.ErrorCode, payload.ErrorMessage)
	}
	return text
}
