// Package session tracks per-identity conversation state and routes inbound
// events to the action the bot should take next.
package session

import (
	"sync"
	"time"

	"gembot/internal/verify"
	"gembot/pkg/protocol"
)

// State represents where an identity is in the conversation
type State string

const (
	StateStart                State = "start"
	StateAwaitingVerification State = "awaiting_verification"
	StateMainMenu             State = "main_menu"
	StateAwaitingQuestion     State = "awaiting_question"
	StateAwaitingImage        State = "awaiting_image"
	StateAwaitingSearchQuery  State = "awaiting_search_query"
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is one the router can hold
func (s State) IsValid() bool {
	switch s {
	case StateStart, StateAwaitingVerification, StateMainMenu,
		StateAwaitingQuestion, StateAwaitingImage, StateAwaitingSearchQuery:
		return true
	default:
		return false
	}
}

// Main menu labels. Matching is exact: these are the strings the menu
// keyboard sends back, not free-form user input.
const (
	MenuAskQuestion  = "💬 Ask Question"
	MenuAnalyzeImage = "🖼 Analyze Image"
	MenuWebSearch    = "🌐 Web Search"
	MenuChatHistory  = "📚 Chat History"
	MenuSettings     = "⚙️ Settings"
)

// Action is what the bot should do for an event
type Action string

const (
	ActionRequestVerification Action = "request_verification" // prompt for contact share
	ActionVerify              Action = "verify"               // record the shared contact
	ActionShowMenu            Action = "show_menu"
	ActionPrompt              Action = "prompt" // ask for sub-state input
	ActionCancel              Action = "cancel"
	ActionReject              Action = "reject"
	ActionDispatch            Action = "dispatch"
)

// Capability identifies which external call a dispatch decision invokes
type Capability string

const (
	CapabilityTextQA        Capability = "text_qa"
	CapabilityImageAnalysis Capability = "image_analysis"
	CapabilityWebSearch     Capability = "web_search"
	CapabilityShowHistory   Capability = "show_history"
	CapabilityShowSettings  Capability = "show_settings"
)

// RejectReason explains why an event was rejected
type RejectReason string

const (
	RejectRateLimited RejectReason = "rate_limited"
)

// Decision is the router's output for a single event
type Decision struct {
	Action     Action
	Capability Capability   // set for ActionDispatch
	Payload    string       // dispatch input: question text, search query or photo ref
	Prompt     string       // set for ActionPrompt
	Reason     RejectReason // set for ActionReject
}

// Rejected builds the decision for an event dropped before routing
func Rejected(reason RejectReason) Decision {
	return Decision{Action: ActionReject, Reason: reason}
}

type stateInfo struct {
	state   State
	changed time.Time
}

// Router is the per-identity conversation state machine. Sub-state is scoped
// per identity so concurrent users never share prompts.
type Router struct {
	states map[string]*stateInfo
	mu     sync.RWMutex
}

// NewRouter creates a router with no tracked identities
func NewRouter() *Router {
	return &Router{
		states: make(map[string]*stateInfo),
	}
}

// StateOf returns the current state for an identity.
// Identities the router has never seen are in StateStart.
func (r *Router) StateOf(identity string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.states[identity]; ok {
		return info.state
	}
	return StateStart
}

func (r *Router) setState(identity string, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.states[identity]; ok {
		if info.state != s {
			info.state = s
			info.changed = time.Now()
		}
		return
	}
	r.states[identity] = &stateInfo{state: s, changed: time.Now()}
}

// Remove forgets an identity's state (e.g. when the transport reports the
// chat gone). The next event starts from StateStart.
func (r *Router) Remove(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, identity)
}

// TrackedIdentities returns the number of identities with recorded state
func (r *Router) TrackedIdentities() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

// Route decides what to do with an admitted event given the identity's
// verification status, and advances the state machine. Rate limiting is the
// caller's concern and happens before Route.
func (r *Router) Route(ev *protocol.Event, access verify.Access) Decision {
	identity := ev.Identity

	// Contact shares verify from any state
	if ev.Kind == protocol.EventContact {
		r.setState(identity, StateMainMenu)
		return Decision{Action: ActionVerify, Payload: ev.Phone}
	}

	// Everything else requires verification first
	if !access.Verified() {
		r.setState(identity, StateAwaitingVerification)
		return Decision{Action: ActionRequestVerification}
	}

	if ev.Kind == protocol.EventCommand {
		return r.routeCommand(ev)
	}

	// Photos analyze from any verified state; the prompted sub-state only
	// changes what happens to text in the meantime.
	if ev.Kind == protocol.EventPhoto {
		r.setState(identity, StateMainMenu)
		return Decision{Action: ActionDispatch, Capability: CapabilityImageAnalysis, Payload: ev.PhotoRef}
	}

	switch r.StateOf(identity) {
	case StateAwaitingQuestion:
		// Whatever the user typed is the question, menu labels included
		r.setState(identity, StateMainMenu)
		return Decision{Action: ActionDispatch, Capability: CapabilityTextQA, Payload: ev.Text}

	case StateAwaitingSearchQuery:
		r.setState(identity, StateMainMenu)
		return Decision{Action: ActionDispatch, Capability: CapabilityWebSearch, Payload: ev.Text}

	default:
		return r.routeMenu(ev)
	}
}

// routeCommand handles slash commands for verified users
func (r *Router) routeCommand(ev *protocol.Event) Decision {
	switch ev.Command() {
	case "cancel":
		r.setState(ev.Identity, StateMainMenu)
		return Decision{Action: ActionCancel}
	default:
		// /start and anything unrecognized land on the menu
		r.setState(ev.Identity, StateMainMenu)
		return Decision{Action: ActionShowMenu}
	}
}

// routeMenu matches text against the menu labels; unmatched text falls
// through to a direct Q&A dispatch.
func (r *Router) routeMenu(ev *protocol.Event) Decision {
	identity := ev.Identity

	switch ev.Text {
	case MenuAskQuestion:
		r.setState(identity, StateAwaitingQuestion)
		return Decision{Action: ActionPrompt, Prompt: "Type your question:"}

	case MenuAnalyzeImage:
		r.setState(identity, StateAwaitingImage)
		return Decision{Action: ActionPrompt, Prompt: "Send an image for analysis:"}

	case MenuWebSearch:
		r.setState(identity, StateAwaitingSearchQuery)
		return Decision{Action: ActionPrompt, Prompt: "Type your search query:"}

	case MenuChatHistory:
		r.setState(identity, StateMainMenu)
		return Decision{Action: ActionDispatch, Capability: CapabilityShowHistory}

	case MenuSettings:
		r.setState(identity, StateMainMenu)
		return Decision{Action: ActionDispatch, Capability: CapabilityShowSettings}

	default:
		r.setState(identity, StateMainMenu)
		return Decision{Action: ActionDispatch, Capability: CapabilityTextQA, Payload: ev.Text}
	}
}
