package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mintWatch/internal/model"
)

const maxCaptionRunes = 1024

// DeliveryError is a notification the channel did not accept.
type DeliveryError struct {
	TokenID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver mint alert for token %s: %v", e.TokenID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Sender sends a Telegram message. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Target is a Telegram destination: a numeric chat id or an @channel name.
type Target struct {
	ChatID   int64
	Username string
}

// ParseTarget accepts "-100123..." style ids and "@channel" names.
func ParseTarget(input string) (Target, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Target{}, fmt.Errorf("chat id is required")
	}
	if strings.HasPrefix(input, "@") {
		if len(input) == 1 {
			return Target{}, fmt.Errorf("invalid channel name: %q", input)
		}
		return Target{Username: input}, nil
	}
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return Target{}, fmt.Errorf("invalid chat id: %q", input)
	}
	return Target{ChatID: id}, nil
}

func (t Target) String() string {
	if t.Username != "" {
		return t.Username
	}
	return strconv.FormatInt(t.ChatID, 10)
}

// TelegramNotifier posts one alert per mint to a chat.
type TelegramNotifier struct {
	sender Sender
	target Target
}

func NewTelegramNotifier(sender Sender, target Target) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, target: target}
}

// Notify sends the alert as a photo with caption when the token has an image,
// and as plain text otherwise. It does not retry.
func (n *TelegramNotifier) Notify(ctx context.Context, mint model.MintEvent, meta model.TokenMetadata) error {
	tokenID := mint.TokenID.String()
	if err := ctx.Err(); err != nil {
		return &DeliveryError{TokenID: tokenID, Err: err}
	}

	text := FormatMintAlert(mint, meta)

	var msg tgbotapi.Chattable
	if meta.ImageURI != "" {
		photo := tgbotapi.NewPhoto(n.target.ChatID, tgbotapi.FileURL(meta.ImageURI))
		photo.ChannelUsername = n.target.Username
		photo.Caption = truncateRunes(text, maxCaptionRunes)
		msg = photo
	} else {
		message := tgbotapi.NewMessage(n.target.ChatID, text)
		message.ChannelUsername = n.target.Username
		msg = message
	}

	if _, err := n.sender.Send(msg); err != nil {
		return &DeliveryError{TokenID: tokenID, Err: err}
	}
	return nil
}

// FormatMintAlert renders the alert text for a mint.
func FormatMintAlert(mint model.MintEvent, meta model.TokenMetadata) string {
	var b strings.Builder
	b.WriteString("🔥 New Mint Alert!\n")
	fmt.Fprintf(&b, "Token ID: #%s\n", mint.TokenID.String())
	fmt.Fprintf(&b, "Owner: %s\n", mint.Owner().Hex())
	fmt.Fprintf(&b, "Name: %s", meta.Name)
	if meta.ImageURI != "" {
		fmt.Fprintf(&b, "\nImage: %s", meta.ImageURI)
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
