package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VladKovDev/subgate-bot/internal/config"
	domainBroadcast "github.com/VladKovDev/subgate-bot/internal/domain/broadcast"
	"github.com/VladKovDev/subgate-bot/internal/domain/command"
	"github.com/VladKovDev/subgate-bot/internal/metrics"
	"github.com/VladKovDev/subgate-bot/internal/services/subscription"
	"github.com/VladKovDev/subgate-bot/internal/services/template"
	"github.com/VladKovDev/subgate-bot/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	callbackAbout = "about"
	callbackClose = "close"

	// promptDeleteDelay is how long the "reply to a message" prompt stays visible.
	promptDeleteDelay = 8 * time.Second
)

const (
	textProcessing      = "<b>Processing...</b>"
	textTotalUsers      = "<b>Total Users:</b> %d"
	textBroadcasting    = "<i>Broadcasting message. This might take some time...</i>"
	textReplyToMessage  = "<i>Please reply to a message to broadcast.</i>"
	textAlreadyRunning  = "A broadcast is already running."
	textBroadcastAbortf = "<b>Broadcast aborted</b>\nProcessed: <code>%d</code>\n<code>%s</code>"
)

// BotAPI is the subset of *tgbotapi.BotAPI the handler talks to.
type BotAPI interface {
	Requester
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, userID int64) bool
	Channels() []subscription.Channel
}

type Broadcaster interface {
	Run(ctx context.Context, tmpl domainBroadcast.Template) (domainBroadcast.Report, error)
}

type UserStore interface {
	Add(ctx context.Context, userID int64) error
	Contains(ctx context.Context, userID int64) (bool, error)
	Count(ctx context.Context) (int64, error)
}

type BotHandler struct {
	bot         BotAPI
	username    string
	botCfg      config.BotConfig
	templates   config.TemplatesConfig
	users       UserStore
	checker     SubscriptionChecker
	broadcaster Broadcaster
	renderer    *template.Renderer
	logger      logger.Logger

	broadcasting atomic.Bool
	jobs         sync.WaitGroup
	afterFunc    func(d time.Duration, f func())
}

func NewBotHandler(
	bot BotAPI,
	username string,
	cfg *config.Config,
	users UserStore,
	checker SubscriptionChecker,
	broadcaster Broadcaster,
	logger logger.Logger,
) *BotHandler {
	return &BotHandler{
		bot:         bot,
		username:    username,
		botCfg:      cfg.Bot,
		templates:   cfg.Templates,
		users:       users,
		checker:     checker,
		broadcaster: broadcaster,
		renderer:    template.NewRenderer(),
		logger:      logger.Named("telegram"),
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Start begins processing incoming Telegram updates and routes commands.
// It returns when ctx is cancelled or the updates channel closes.
func (h *BotHandler) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.bot.GetUpdatesChan(u)
	h.logger.Info("receiving updates", zap.String("account", h.username))

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("stopping update loop")
			h.bot.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				h.logger.Warn("updates channel closed")
				return
			}
			h.HandleUpdate(ctx, upd)
		}
	}
}

// Wait blocks until a running broadcast job has finished.
func (h *BotHandler) Wait() {
	h.jobs.Wait()
}

// HandleUpdate routes a single update.
func (h *BotHandler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		h.handleCallbackQuery(ctx, upd.CallbackQuery)
		return
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() || !msg.IsCommand() {
		return
	}

	h.handleCommand(ctx, msg)
}

func (h *BotHandler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	name := strings.ToLower(msg.Command())

	cmd, ok := command.AllCommands.Lookup(name)
	if !ok {
		return
	}
	if cmd.Role == command.RoleAdmin && !h.botCfg.IsAdmin(msg.From.ID) {
		h.logger.Debug("ignoring admin command from non-admin",
			zap.String("command", name),
			zap.Int64("user_id", msg.From.ID))
		return
	}

	metrics.IncCommand(name)

	var err error
	switch name {
	case command.Start:
		err = h.startCommand(ctx, msg)
	case command.Users:
		err = h.usersCommand(ctx, msg)
	case command.Broadcast:
		err = h.broadcastCommand(ctx, msg)
	}
	if err != nil {
		h.logger.Error("failed to handle command",
			zap.String("command", name),
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err))
	}
}

func (h *BotHandler) startCommand(ctx context.Context, msg *tgbotapi.Message) error {
	userID := msg.From.ID
	vars := template.UserVars(msg.From)

	if !h.checker.IsSubscribed(ctx, userID) {
		text := h.renderer.Render(h.templates.ForceSub, vars)
		_, err := h.reply(msg, text, h.forceSubKeyboard())
		return err
	}

	present, err := h.users.Contains(ctx, userID)
	if err != nil {
		h.logger.Error("failed to check user", zap.Int64("user_id", userID), zap.Error(err))
	}
	if err == nil && !present {
		if err := h.users.Add(ctx, userID); err != nil {
			h.logger.Error("failed to add user", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			h.logger.Info("new user", zap.Int64("user_id", userID))
		}
	}

	text := h.renderer.Render(h.templates.Start, vars)
	_, err = h.reply(msg, text, startKeyboard())
	return err
}

func (h *BotHandler) usersCommand(ctx context.Context, msg *tgbotapi.Message) error {
	m := tgbotapi.NewMessage(msg.Chat.ID, textProcessing)
	m.ParseMode = tgbotapi.ModeHTML

	sent, err := h.bot.Send(m)
	if err != nil {
		return fmt.Errorf("failed to send processing message: %w", err)
	}

	count, err := h.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}

	return h.edit(msg.Chat.ID, sent.MessageID, fmt.Sprintf(textTotalUsers, count))
}

func (h *BotHandler) broadcastCommand(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.ReplyToMessage == nil {
		prompt, err := h.reply(msg, textReplyToMessage, nil)
		if err != nil {
			return err
		}
		h.afterFunc(promptDeleteDelay, func() {
			h.delete(msg.Chat.ID, prompt.MessageID)
		})
		return nil
	}

	if !h.broadcasting.CompareAndSwap(false, true) {
		_, err := h.reply(msg, textAlreadyRunning, nil)
		return err
	}

	wait, err := h.reply(msg, textBroadcasting, nil)
	if err != nil {
		h.broadcasting.Store(false)
		return err
	}

	tmpl := domainBroadcast.Template{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ReplyToMessage.MessageID,
	}

	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		defer h.broadcasting.Store(false)
		h.runBroadcast(ctx, msg.Chat.ID, wait.MessageID, tmpl)
	}()

	return nil
}

func (h *BotHandler) runBroadcast(ctx context.Context, chatID int64, statusID int, tmpl domainBroadcast.Template) {
	report, err := h.broadcaster.Run(ctx, tmpl)

	text := report.Render()
	if err != nil {
		var processed int
		var abortErr *domainBroadcast.AbortError
		if errors.As(err, &abortErr) {
			processed = abortErr.Partial.Total
		}
		text = fmt.Sprintf(textBroadcastAbortf, processed, html.EscapeString(err.Error()))
	}

	if err := h.edit(chatID, statusID, text); err != nil {
		h.logger.Error("failed to publish broadcast result", zap.Error(err))
	}
}

func (h *BotHandler) handleCallbackQuery(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	defer h.answerCallback(cb.ID)

	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	switch cb.Data {
	case callbackAbout:
		text := h.renderer.Render(h.templates.About, template.UserVars(cb.From))
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, text, closeKeyboard())
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true
		if _, err := h.bot.Request(edit); err != nil {
			h.logger.Error("failed to show about message", zap.Error(err))
		}
	case callbackClose:
		h.delete(chatID, cb.Message.MessageID)
		if reply := cb.Message.ReplyToMessage; reply != nil {
			h.delete(chatID, reply.MessageID)
		}
	}
}

// reply sends an HTML message quoting msg.
func (h *BotHandler) reply(msg *tgbotapi.Message, text string, markup interface{}) (tgbotapi.Message, error) {
	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableWebPagePreview = true
	m.ReplyToMessageID = msg.MessageID
	if markup != nil {
		m.ReplyMarkup = markup
	}

	sent, err := h.bot.Send(m)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("failed to send message: %w", err)
	}
	return sent, nil
}

func (h *BotHandler) edit(chatID int64, messageID int, text string) error {
	e := tgbotapi.NewEditMessageText(chatID, messageID, text)
	e.ParseMode = tgbotapi.ModeHTML
	if _, err := h.bot.Request(e); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (h *BotHandler) delete(chatID int64, messageID int) {
	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		h.logger.Warn("failed to delete message",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
	}
}

func (h *BotHandler) answerCallback(id string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(id, "")); err != nil {
		h.logger.Warn("failed to answer callback", zap.Error(err))
	}
}

func (h *BotHandler) forceSubKeyboard() tgbotapi.InlineKeyboardMarkup {
	var join []tgbotapi.InlineKeyboardButton
	for i, ch := range h.checker.Channels() {
		url := ch.JoinURL()
		if url == "" {
			continue
		}
		join = append(join, tgbotapi.NewInlineKeyboardButtonURL(fmt.Sprintf("Join Channel %d", i+1), url))
	}

	tryAgain := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("Try Again", fmt.Sprintf("https://t.me/%s?start=start", h.username)),
	)

	if len(join) == 0 {
		return tgbotapi.NewInlineKeyboardMarkup(tryAgain)
	}
	return tgbotapi.NewInlineKeyboardMarkup(join, tryAgain)
}

func startKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("About Me", callbackAbout),
			tgbotapi.NewInlineKeyboardButtonData("Close", callbackClose),
		),
	)
}

func closeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Close", callbackClose),
		),
	)
}
