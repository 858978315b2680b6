// Package telegram implements the Telegram channel adapter. It converts
// Telegram updates into protocol events and delivers replies with the
// appropriate reply keyboards.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"gembot/internal/channels"
	"gembot/internal/session"
	"gembot/internal/version"
	"gembot/pkg/protocol"
)

const contactButtonLabel = "📱 Share Contact"

// botAPI abstracts the Telegram bot methods used by the adapter, enabling
// testing with mocks.
type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	GetMe(ctx context.Context) (*models.User, error)
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
}

// Config contains Telegram-specific configuration
type Config struct {
	BotToken string `json:"bot_token"`
	Debug    bool   `json:"debug"`
}

// Adapter implements the ChannelAdapter interface for Telegram
type Adapter struct {
	name       string
	bot        botAPI
	config     Config
	status     channels.StatusCode
	statusMsg  string
	incoming   chan *protocol.Event
	httpClient *http.Client
	ctx        context.Context
	cancel     context.CancelFunc
	mutex      sync.RWMutex
	startTime  time.Time
	eventCount int64
}

// NewAdapter creates a Telegram adapter from the given configuration
func NewAdapter(name string, config Config) (*Adapter, error) {
	if config.BotToken == "" {
		return nil, fmt.Errorf("bot_token is required for Telegram adapter")
	}

	return &Adapter{
		name:       name,
		config:     config,
		status:     channels.StatusInitializing,
		incoming:   make(chan *protocol.Event, 100),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the adapter's human-readable name
func (a *Adapter) Name() string {
	return a.name
}

// Type returns the adapter type
func (a *Adapter) Type() string {
	return "telegram"
}

// Start initializes and starts the Telegram bot in long-polling mode
func (a *Adapter) Start(ctx context.Context) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.status = channels.StatusInitializing
	a.statusMsg = "Starting Telegram bot"
	a.startTime = time.Now()

	opts := []bot.Option{
		bot.WithDefaultHandler(a.handleUpdate),
	}
	if a.config.Debug {
		opts = append(opts, bot.WithDebug())
	}

	telegramBot, err := bot.New(a.config.BotToken, opts...)
	if err != nil {
		a.status = channels.StatusError
		a.statusMsg = fmt.Sprintf("Failed to create bot: %v", err)
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	a.bot = telegramBot
	a.dropPendingUpdates(ctx)
	a.registerCommands(ctx)

	go func() {
		defer func() {
			a.mutex.Lock()
			a.status = channels.StatusOffline
			a.statusMsg = "Bot stopped"
			a.mutex.Unlock()
		}()

		a.mutex.Lock()
		a.status = channels.StatusOnline
		a.statusMsg = "Bot is running"
		a.mutex.Unlock()

		log.Printf("[Telegram] Bot started: %s", a.name)
		a.bot.Start(a.ctx)
	}()

	return nil
}

// Stop gracefully shuts down the adapter
func (a *Adapter) Stop() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.cancel != nil {
		a.cancel()
	}

	a.status = channels.StatusOffline
	a.statusMsg = "Adapter stopped"

	close(a.incoming)

	log.Printf("[Telegram] Adapter stopped: %s", a.name)
	return nil
}

// SendReply delivers an outbound reply, attaching the requested keyboard
func (a *Adapter) SendReply(reply *protocol.Reply) error {
	if a.bot == nil {
		return fmt.Errorf("bot not initialized")
	}

	chatID, err := strconv.ParseInt(reply.Identity, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %s", reply.Identity)
	}

	params := &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        reply.Text,
		ReplyMarkup: buildKeyboard(reply.Keyboard),
	}
	if reply.Markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}

	_, err = a.bot.SendMessage(a.ctx, params)
	if err != nil {
		// Telegram rejects messages whose markdown entities don't balance;
		// retry such failures as plain text
		if reply.Markdown && strings.Contains(err.Error(), "can't parse entities") {
			log.Printf("[Telegram] Markdown parsing failed, retrying as plain text: %v", err)
			params.ParseMode = ""
			if _, err = a.bot.SendMessage(a.ctx, params); err != nil {
				return fmt.Errorf("failed to send message (plain text fallback): %w", err)
			}
		} else {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	// Privacy-safe logging - no message content
	log.Printf("[Telegram] Reply sent to chat (%d chars)", len(reply.Text))

	a.mutex.Lock()
	a.eventCount++
	a.mutex.Unlock()

	return nil
}

// buildKeyboard maps a keyboard kind to its Telegram reply markup
func buildKeyboard(kind protocol.KeyboardKind) models.ReplyMarkup {
	switch kind {
	case protocol.KeyboardContact:
		return &models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: contactButtonLabel, RequestContact: true}},
			},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	case protocol.KeyboardMenu:
		return &models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: session.MenuAskQuestion}, {Text: session.MenuAnalyzeImage}},
				{{Text: session.MenuWebSearch}, {Text: session.MenuChatHistory}},
				{{Text: session.MenuSettings}},
			},
			ResizeKeyboard:        true,
			InputFieldPlaceholder: "Select an option...",
		}
	case protocol.KeyboardRemove:
		return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
	default:
		return nil
	}
}

// ReceiveEvents returns the channel for incoming events
func (a *Adapter) ReceiveEvents() <-chan *protocol.Event {
	return a.incoming
}

// Status returns the current adapter status
func (a *Adapter) Status() channels.ChannelStatus {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	details := map[string]interface{}{
		"uptime_seconds": time.Since(a.startTime).Seconds(),
		"event_count":    a.eventCount,
	}

	if a.bot != nil {
		if me, err := a.bot.GetMe(context.Background()); err == nil {
			details["bot_id"] = me.ID
			details["bot_username"] = me.Username
		}
	}

	return channels.ChannelStatus{
		Status:    a.status,
		Message:   a.statusMsg,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// IsHealthy returns whether the adapter is functioning properly
func (a *Adapter) IsHealthy() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.status == channels.StatusOnline && a.bot != nil
}

// handleUpdate converts an incoming Telegram update into a protocol event
func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	ev := a.eventFromMessage(msg)
	if ev == nil {
		return
	}

	select {
	case a.incoming <- ev:
		a.mutex.Lock()
		a.eventCount++
		a.mutex.Unlock()

		// Privacy-safe logging - no message content or user names
		log.Printf("[Telegram] Received %s event from chat %d", ev.Kind, msg.Chat.ID)
	default:
		log.Printf("[Telegram] Warning: incoming event channel is full, dropping %s event", ev.Kind)
	}
}

// eventFromMessage classifies a Telegram message. Contact shares and photos
// take precedence over text; unrecognized updates yield nil.
func (a *Adapter) eventFromMessage(msg *models.Message) *protocol.Event {
	ev := &protocol.Event{
		ID:        generateEventID(),
		Identity:  strconv.FormatInt(msg.Chat.ID, 10),
		Timestamp: time.Now(),
		Metadata:  map[string]string{"message_id": strconv.Itoa(msg.ID)},
	}
	if msg.From != nil {
		ev.Metadata["from_first_name"] = msg.From.FirstName
		ev.Metadata["from_username"] = msg.From.Username
	}

	switch {
	case msg.Contact != nil:
		ev.Kind = protocol.EventContact
		ev.Phone = msg.Contact.PhoneNumber
	case len(msg.Photo) > 0:
		ev.Kind = protocol.EventPhoto
		ev.PhotoRef = largestPhoto(msg.Photo).FileID
		ev.Text = msg.Caption
	case strings.HasPrefix(msg.Text, "/"):
		ev.Kind = protocol.EventCommand
		ev.Text = msg.Text
	case msg.Text != "":
		ev.Kind = protocol.EventText
		ev.Text = msg.Text
	default:
		return nil
	}

	return ev
}

// largestPhoto picks the highest-resolution size from a Telegram photo set
func largestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

// generateEventID creates a unique event ID
func generateEventID() string {
	return fmt.Sprintf("telegram_%s", uuid.New().String()[:8])
}

// SendTypingIndicator sends a "typing" chat action to show the bot is thinking
func (a *Adapter) SendTypingIndicator(identity string) error {
	return a.sendChatAction(identity, models.ChatActionTyping)
}

// SendUploadIndicator sends an "uploading photo" chat action during image work
func (a *Adapter) SendUploadIndicator(identity string) error {
	return a.sendChatAction(identity, models.ChatActionUploadPhoto)
}

func (a *Adapter) sendChatAction(identity string, action models.ChatAction) error {
	if a.bot == nil {
		return fmt.Errorf("bot not initialized")
	}

	chatID, err := strconv.ParseInt(identity, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %s", identity)
	}

	_, err = a.bot.SendChatAction(a.ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: action,
	})
	return err
}

// FetchPhoto downloads the photo payload for a file reference from an
// incoming photo event
func (a *Adapter) FetchPhoto(ctx context.Context, photoRef string) ([]byte, error) {
	if a.bot == nil {
		return nil, fmt.Errorf("bot not initialized")
	}

	file, err := a.bot.GetFile(ctx, &bot.GetFileParams{FileID: photoRef})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", photoRef, err)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", a.config.BotToken, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}

	log.Printf("[Telegram] Downloaded photo %s (%d bytes)", photoRef, len(data))
	return data, nil
}

// dropPendingUpdates discards updates that queued up while the bot was
// down, so a restart doesn't replay a backlog of stale messages
func (a *Adapter) dropPendingUpdates(ctx context.Context) {
	_, err := a.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{
		DropPendingUpdates: true,
	})
	if err != nil {
		log.Printf("[Telegram] Warning: Failed to drop pending updates: %v", err)
	}
}

// registerCommands registers slash commands with Telegram
func (a *Adapter) registerCommands(ctx context.Context) {
	commands := []models.BotCommand{
		{Command: "start", Description: "Show the main menu"},
		{Command: "cancel", Description: "Cancel the current operation"},
	}

	_, err := a.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		log.Printf("[Telegram] Warning: Failed to register commands: %v", err)
	}
}
