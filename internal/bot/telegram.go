package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	defaultMaxInFlight  = 8
	updatePollTimeout   = 30
	maxPhotoCaptionRune = 1024
)

// BotClient is the subset of *tgbotapi.BotAPI used by the listener.
type BotClient interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Listener long-polls Telegram for commands and answers them through Commands.
type Listener struct {
	bot         BotClient
	commands    *Commands
	maxInFlight int
	logger      *zap.Logger
}

func NewListener(bot BotClient, commands *Commands, maxInFlight int, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &Listener{bot: bot, commands: commands, maxInFlight: maxInFlight, logger: logger}
}

// Run handles updates until ctx is canceled. Each command runs on its own
// goroutine; at most maxInFlight run at once.
func (l *Listener) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updatePollTimeout
	updates := l.bot.GetUpdatesChan(u)

	sem := make(chan struct{}, l.maxInFlight)
	var wg sync.WaitGroup
	defer wg.Wait()

	l.logger.Info("command listener start")
	for {
		select {
		case <-ctx.Done():
			l.bot.StopReceivingUpdates()
			l.logger.Info("command listener stop")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() {
				continue
			}
			if !l.commands.Known(msg.Command()) {
				continue
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				l.bot.StopReceivingUpdates()
				return nil
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				l.handle(ctx, msg)
			}(msg)
		}
	}
}

func (l *Listener) handle(ctx context.Context, msg *tgbotapi.Message) {
	l.logger.Debug("command received",
		zap.String("command", msg.Command()),
		zap.String("args", msg.CommandArguments()),
		zap.Int64("chat_id", msg.Chat.ID),
	)

	for _, reply := range l.commands.Dispatch(ctx, msg.Command(), msg.CommandArguments()) {
		if err := l.send(msg, reply); err != nil {
			l.logger.Warn("reply not sent", zap.String("command", msg.Command()), zap.Error(err))
		}
	}
}

// send posts a reply. A photo Telegram rejects is retried once as text.
func (l *Listener) send(msg *tgbotapi.Message, reply Reply) error {
	if reply.ImageURL != "" {
		photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileURL(reply.ImageURL))
		photo.Caption = clip(reply.Text, maxPhotoCaptionRune)
		photo.ReplyToMessageID = msg.MessageID
		_, err := l.bot.Send(photo)
		if err == nil {
			return nil
		}
		l.logger.Debug("photo reply failed, sending text", zap.Error(err))
		reply.Text += "\n" + reply.ImageURL
	}

	text := tgbotapi.NewMessage(msg.Chat.ID, reply.Text)
	text.ReplyToMessageID = msg.MessageID
	_, err := l.bot.Send(text)
	return err
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
