package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramClient talks to Telegram through the bot API. The underlying bot
// is created lazily on first use so construction never does network I/O.
type TelegramClient struct {
	token  string
	logger *slog.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegramClient(log *slog.Logger, token string) *TelegramClient {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramClient{
		token:  token,
		logger: log.With(slog.String("service", "bridge")),
	}
}

func (c *TelegramClient) getBot() (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		return c.bot, nil
	}
	if c.token == "" {
		return nil, fmt.Errorf("bridge bot token is not configured")
	}
	bot, err := tgbotapi.NewBotAPI(c.token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	c.logger.Info("telegram bot authorized", "username", bot.Self.UserName)
	c.bot = bot
	return bot, nil
}

// SendMessage posts text into a Telegram group chat.
func (c *TelegramClient) SendMessage(ctx context.Context, groupID, text string) error {
	bot, err := c.getBot()
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid group id %q: %w", groupID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// GroupInfo fetches the title of a Telegram group chat.
func (c *TelegramClient) GroupInfo(ctx context.Context, groupID string) (GroupInfo, error) {
	bot, err := c.getBot()
	if err != nil {
		return GroupInfo{}, err
	}
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return GroupInfo{}, fmt.Errorf("invalid group id %q: %w", groupID, err)
	}
	if err := ctx.Err(); err != nil {
		return GroupInfo{}, err
	}
	chat, err := bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return GroupInfo{}, fmt.Errorf("get chat %s: %w", groupID, err)
	}
	return GroupInfo{ID: groupID, Title: chat.Title}, nil
}

// ParseUpdate extracts an inbound group message from a webhook update.
// Updates that are not plain text messages in a group chat are skipped.
func ParseUpdate(update tgbotapi.Update) (InboundMessage, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return InboundMessage{}, false
	}
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return InboundMessage{}, false
	}
	if msg.Text == "" {
		return InboundMessage{}, false
	}
	return InboundMessage{
		GroupID:    strconv.FormatInt(msg.Chat.ID, 10),
		GroupTitle: msg.Chat.Title,
		AuthorID:   strconv.FormatInt(msg.From.ID, 10),
		AuthorName: displayName(msg.From),
		Body:       msg.Text,
	}, true
}

// IsLinkCommand reports whether an inbound message is the in-group linking
// command and returns its argument if present.
func IsLinkCommand(m InboundMessage) (string, bool) {
	fields := strings.Fields(m.Body)
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.SplitN(fields[0], "@", 2)[0]
	if cmd != "/link" {
		return "", false
	}
	if len(fields) > 1 {
		return fields[1], true
	}
	return "", true
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
