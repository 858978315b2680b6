// Package bot orchestrates the chatbot: it consumes channel events, applies
// rate limiting and phone verification, routes through the conversation state
// machine, and executes the resulting AI, search, and history operations.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gembot/internal/ai"
	"gembot/internal/channels"
	"gembot/internal/ratelimit"
	"gembot/internal/search"
	"gembot/internal/session"
	"gembot/internal/store"
	"gembot/internal/verify"
	"gembot/pkg/protocol"
)

// Response shaping limits. Telegram caps messages at 4096 characters;
// anything longer is cut to 4000 with a truncation marker.
const (
	maxReplyRunes    = 4096
	truncateToRunes  = 4000
	truncationMarker = "\n... [truncated]"

	historyPreviewRunes = 50
)

// User-facing strings
const (
	msgRateLimited        = "⚠️ Rate limit exceeded. Please wait 1 minute."
	msgVerifyRequired     = "🔐 Verification Required\n\nPlease share your phone number to continue:"
	msgVerifySuccess      = "✅ Verification successful!\nYou can now access all features."
	msgVerifyFailed       = "⚠️ Verification failed. Please try again."
	msgMainMenu           = "Main Menu:"
	msgCancelled          = "Operation cancelled"
	msgTextTimeout        = "⌛ Response timed out. Please try again."
	msgTextError          = "⚠️ Error processing request. Please try rephrasing."
	msgImageTimeout       = "⌛ Image processing timed out. Please try again."
	msgImageError         = "⚠️ Error processing image"
	msgHistoryEmpty       = "📚 No chat history found"
	msgHistoryError       = "⚠️ Error retrieving history"
	msgSearchUnavailable  = "⚠️ Search service unavailable"
	msgServiceIssue       = "⚠️ Temporary service issue. Please try again later."
	msgSettings           = "⚙️ Settings:\n\n1. Change language\n2. Notification preferences\n3. Reset account\n\nFeature under development!"
)

// Config controls orchestrator behavior
type Config struct {
	ResponseTimeout time.Duration `json:"response_timeout"` // budget per AI call
	HistoryLimit    int           `json:"history_limit"`    // conversations shown by chat history
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		ResponseTimeout: 25 * time.Second,
		HistoryLimit:    10,
	}
}

// Bot wires the channel adapter to the conversation router and the
// capability backends
type Bot struct {
	adapter  channels.ChannelAdapter
	router   *session.Router
	gate     *verify.Gate
	limiter  *ratelimit.Limiter
	provider ai.Provider
	search   *search.Service
	store    *store.Store
	config   Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the orchestrator from its collaborators.
// A nil limiter disables rate limiting.
func New(adapter channels.ChannelAdapter, gate *verify.Gate, router *session.Router,
	limiter *ratelimit.Limiter, provider ai.Provider, searchSvc *search.Service,
	st *store.Store, config Config) *Bot {

	if config.ResponseTimeout == 0 {
		config.ResponseTimeout = DefaultConfig().ResponseTimeout
	}
	if config.HistoryLimit == 0 {
		config.HistoryLimit = DefaultConfig().HistoryLimit
	}

	return &Bot{
		adapter:  adapter,
		router:   router,
		gate:     gate,
		limiter:  limiter,
		provider: provider,
		search:   searchSvc,
		store:    st,
		config:   config,
	}
}

// Start begins consuming events from the channel adapter. Each event is
// handled on its own goroutine so a slow AI call never blocks other chats.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.adapter.Start(b.ctx); err != nil {
		return fmt.Errorf("failed to start channel adapter: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.ctx.Done():
				return
			case ev, ok := <-b.adapter.ReceiveEvents():
				if !ok {
					return
				}
				b.wg.Add(1)
				go func() {
					defer b.wg.Done()
					b.handleEvent(ev)
				}()
			}
		}
	}()

	log.Printf("[Bot] Orchestrator started (adapter: %s)", b.adapter.Name())
	return nil
}

// Stop shuts down the event loop and waits for in-flight handlers
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	err := b.adapter.Stop()
	b.wg.Wait()
	log.Printf("[Bot] Orchestrator stopped")
	return err
}

// handleEvent runs the full pipeline for a single inbound event
func (b *Bot) handleEvent(ev *protocol.Event) {
	identity := ev.Identity

	// A nil limiter means rate limiting is disabled by configuration
	if b.limiter != nil {
		allowed, remaining, retryAfter := b.limiter.Allow(identity)
		if !allowed {
			log.Printf("[Bot] Rate limited chat %s (retry after %ds)", identity, retryAfter)
			b.execute(ev, session.Rejected(session.RejectRateLimited))
			return
		}
		if remaining <= 3 {
			log.Printf("[Bot] Chat %s near rate limit (%d requests remaining)", identity, remaining)
		}
	}

	access, err := b.gate.Check(b.ctx, identity)
	if err != nil {
		log.Printf("[Bot] Verification check failed for chat %s: %v", identity, err)
		b.send(identity, msgServiceIssue, protocol.KeyboardNone, false)
		return
	}

	// First contact: create an unverified user record
	if access.Status == verify.StatusNotRegistered {
		user, err := b.gate.Register(b.ctx, identity,
			ev.Metadata["from_first_name"], ev.Metadata["from_username"])
		if err != nil {
			log.Printf("[Bot] Registration failed for chat %s: %v", identity, err)
			b.send(identity, msgServiceIssue, protocol.KeyboardNone, false)
			return
		}
		access = verify.Access{Status: verify.StatusUnverified, User: user}
	}

	decision := b.router.Route(ev, access)
	b.execute(ev, decision)
}

// execute carries out a routing decision
func (b *Bot) execute(ev *protocol.Event, decision session.Decision) {
	identity := ev.Identity

	switch decision.Action {
	case session.ActionRequestVerification:
		b.send(identity, msgVerifyRequired, protocol.KeyboardContact, false)

	case session.ActionVerify:
		b.recordContact(ev, decision.Payload)

	case session.ActionShowMenu:
		b.send(identity, msgMainMenu, protocol.KeyboardMenu, false)

	case session.ActionPrompt:
		b.send(identity, decision.Prompt, protocol.KeyboardRemove, false)

	case session.ActionCancel:
		b.send(identity, msgCancelled, protocol.KeyboardMenu, false)

	case session.ActionReject:
		b.send(identity, msgRateLimited, protocol.KeyboardNone, false)

	case session.ActionDispatch:
		b.dispatch(ev, decision)

	default:
		log.Printf("[Bot] Unknown action %q for chat %s", decision.Action, identity)
	}
}

// recordContact persists a shared phone number and confirms verification
func (b *Bot) recordContact(ev *protocol.Event, phone string) {
	identity := ev.Identity

	_, err := b.gate.RecordContact(b.ctx, identity, phone,
		ev.Metadata["from_first_name"], ev.Metadata["from_username"])
	if err != nil {
		log.Printf("[Bot] Failed to record contact for chat %s: %v", identity, err)
		b.send(identity, msgVerifyFailed, protocol.KeyboardNone, false)
		return
	}

	log.Printf("[Bot] Chat %s verified", identity)
	b.send(identity, msgVerifySuccess, protocol.KeyboardRemove, false)
	b.send(identity, msgMainMenu, protocol.KeyboardMenu, false)
}

// dispatch invokes the capability a dispatch decision names
func (b *Bot) dispatch(ev *protocol.Event, decision session.Decision) {
	switch decision.Capability {
	case session.CapabilityTextQA:
		b.answerQuestion(ev.Identity, decision.Payload)
	case session.CapabilityImageAnalysis:
		b.analyzeImage(ev.Identity, decision.Payload)
	case session.CapabilityWebSearch:
		b.webSearch(ev.Identity, decision.Payload)
	case session.CapabilityShowHistory:
		b.showHistory(ev.Identity)
	case session.CapabilityShowSettings:
		b.send(ev.Identity, msgSettings, protocol.KeyboardMenu, false)
	default:
		log.Printf("[Bot] Unknown capability %q for chat %s", decision.Capability, ev.Identity)
	}
}

// answerQuestion generates an AI response for a text question
func (b *Bot) answerQuestion(identity, question string) {
	b.indicateTyping(identity)

	ctx, cancel := context.WithTimeout(b.ctx, b.config.ResponseTimeout)
	defer cancel()

	answer, err := b.provider.GenerateText(ctx, question)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[Bot] AI response timeout for chat %s", identity)
			b.send(identity, msgTextTimeout, protocol.KeyboardMenu, false)
			return
		}
		log.Printf("[Bot] AI error for chat %s: %v", identity, err)
		b.send(identity, msgTextError, protocol.KeyboardMenu, false)
		return
	}

	answer = truncateReply(answer)

	// History persistence is best-effort; a storage fault must not lose the
	// answer the user is waiting on
	if err := b.store.SaveMessage(b.ctx, identity, question, answer); err != nil {
		log.Printf("[Bot] Failed to save message for chat %s: %v", identity, err)
	}

	b.send(identity, "🤖 *Response*\n\n"+answer, protocol.KeyboardMenu, true)
}

// analyzeImage downloads a photo and runs AI analysis on it
func (b *Bot) analyzeImage(identity, photoRef string) {
	fetcher, ok := b.adapter.(channels.PhotoFetcher)
	if !ok {
		log.Printf("[Bot] Adapter %s cannot fetch photos", b.adapter.Type())
		b.send(identity, msgImageError, protocol.KeyboardMenu, false)
		return
	}

	if indicator, ok := b.adapter.(channels.TypingIndicator); ok {
		if err := indicator.SendUploadIndicator(identity); err != nil {
			log.Printf("[Bot] Failed to send upload indicator: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.config.ResponseTimeout)
	defer cancel()

	data, err := fetcher.FetchPhoto(ctx, photoRef)
	if err != nil {
		log.Printf("[Bot] Photo download failed for chat %s: %v", identity, err)
		b.send(identity, msgImageError, protocol.KeyboardMenu, false)
		return
	}

	analysis, err := b.provider.AnalyzeImage(ctx, data, ai.DefaultImagePrompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[Bot] Image analysis timeout for chat %s", identity)
			b.send(identity, msgImageTimeout, protocol.KeyboardMenu, false)
			return
		}
		log.Printf("[Bot] Image analysis error for chat %s: %v", identity, err)
		b.send(identity, msgImageError, protocol.KeyboardMenu, false)
		return
	}

	analysis = truncateReply(analysis)

	if err := b.store.SaveImage(b.ctx, identity, photoRef, analysis); err != nil {
		log.Printf("[Bot] Failed to save image record for chat %s: %v", identity, err)
	}

	b.send(identity, "🖼 *Analysis*\n\n"+analysis, protocol.KeyboardMenu, true)
}

// webSearch runs a search and delivers the summarized results
func (b *Bot) webSearch(identity, query string) {
	if b.search == nil {
		b.send(identity, msgSearchUnavailable, protocol.KeyboardMenu, false)
		return
	}

	b.indicateTyping(identity)

	result, err := b.search.Run(b.ctx, query)
	if err != nil {
		log.Printf("[Bot] Search failed for chat %s: %v", identity, err)
	}

	b.send(identity, formatSearchResult(query, result), protocol.KeyboardMenu, true)
}

// formatSearchResult renders a search outcome for chat delivery
func formatSearchResult(query string, result search.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🌐 *Results for '%s'*\n\n", query)
	fmt.Fprintf(&sb, "📝 Summary:\n%s", result.Summary)

	if len(result.Links) > 0 {
		sb.WriteString("\n\n🔗 Links:")
		for _, link := range result.Links {
			sb.WriteString("\n- " + link)
		}
	}
	return sb.String()
}

// showHistory replies with the user's recent conversations
func (b *Bot) showHistory(identity string) {
	messages, err := b.store.RecentMessages(b.ctx, identity, b.config.HistoryLimit)
	if err != nil {
		log.Printf("[Bot] Failed to load history for chat %s: %v", identity, err)
		b.send(identity, msgHistoryError, protocol.KeyboardMenu, false)
		return
	}

	if len(messages) == 0 {
		b.send(identity, msgHistoryEmpty, protocol.KeyboardMenu, false)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📚 Last %d Conversations:\n\n", b.config.HistoryLimit)
	for i, msg := range messages {
		fmt.Fprintf(&sb, "%d. You: %s\n", i+1, msg.UserMessage)
		fmt.Fprintf(&sb, "   Bot: %s...\n\n", previewResponse(msg.BotResponse))
	}

	b.send(identity, sb.String(), protocol.KeyboardMenu, false)
}

// indicateTyping shows a typing hint if the adapter supports it
func (b *Bot) indicateTyping(identity string) {
	if indicator, ok := b.adapter.(channels.TypingIndicator); ok {
		if err := indicator.SendTypingIndicator(identity); err != nil {
			log.Printf("[Bot] Failed to send typing indicator: %v", err)
		}
	}
}

// send delivers a reply, logging delivery failures
func (b *Bot) send(identity, text string, keyboard protocol.KeyboardKind, markdown bool) {
	err := b.adapter.SendReply(&protocol.Reply{
		Identity: identity,
		Text:     text,
		Keyboard: keyboard,
		Markdown: markdown,
	})
	if err != nil {
		log.Printf("[Bot] Failed to send reply to chat %s: %v", identity, err)
	}
}

// truncateReply cuts over-long responses down to the transport limit
func truncateReply(text string) string {
	if utf8.RuneCountInString(text) <= maxReplyRunes {
		return text
	}
	return string([]rune(text)[:truncateToRunes]) + truncationMarker
}

// previewResponse shortens a stored bot response for the history listing
func previewResponse(text string) string {
	if utf8.RuneCountInString(text) <= historyPreviewRunes {
		return text
	}
	return string([]rune(text)[:historyPreviewRunes])
}
