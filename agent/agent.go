package agent

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/mgreenly/ikigai-sub013/message"
)

const initialMessageCapacity = 16

// Agent is one conversation participant: its identity, its provider
// configuration, its message history, and the runtime flags its worker
// goroutines and the main loop coordinate through. Agents array ownership
// lives in coordinator.Coordinator; an Agent owns only its own fields.
type Agent struct {
	UUID       string
	ParentUUID string
	Name       string

	Provider      string
	Model         string
	ThinkingLevel ThinkingLevel

	ForkMessageID int64
	CreatedAt     time.Time
	EndedAt       *time.Time

	mu       sync.Mutex
	messages []message.Message
	state    atomic.Int32

	interruptRequested atomic.Bool
	toolThreadRunning  atomic.Bool
	forkPending        atomic.Bool
	cancel             atomic.Pointer[context.CancelFunc]

	ToolIterationCount int

	Scrollback     []string
	InputBuffer    string
	ViewportOffset int

	Marks []Mark
}

// Mark is a bookmark into an agent's message sequence, used by /mark and
// /rewind.
type Mark struct {
	Label        string
	MessageIndex int
}

// New creates a root or forked agent. Root agents have no parent; forked
// agents set parentUUID and forkMessageID.
func New(parentUUID string, provider, model string, thinking ThinkingLevel) *Agent {
	a := &Agent{
		UUID:          base64.RawURLEncoding.EncodeToString(ksuid.New().Bytes()[:16]),
		ParentUUID:    parentUUID,
		Provider:      provider,
		Model:         model,
		ThinkingLevel: thinking,
		CreatedAt:     time.Now(),
		messages:      make([]message.Message, 0, initialMessageCapacity),
	}
	a.state.Store(int32(StateIdle))
	return a
}

// Restore reconstructs a previously-persisted agent for session resume.
// Unlike New, the UUID and creation time come from the database row rather
// than being minted fresh; the caller replays history onto the result with
// AddMessage before handing it to the coordinator.
func Restore(uuid, parentUUID, provider, model string, thinking ThinkingLevel, createdAt time.Time) *Agent {
	a := &Agent{
		UUID:          uuid,
		ParentUUID:    parentUUID,
		Provider:      provider,
		Model:         model,
		ThinkingLevel: thinking,
		CreatedAt:     createdAt,
		messages:      make([]message.Message, 0, initialMessageCapacity),
	}
	a.state.Store(int32(StateIdle))
	return a
}

func (a *Agent) IsRoot() bool {
	return a.ParentUUID == ""
}

func (a *Agent) State() State {
	return State(a.state.Load())
}

func (a *Agent) SetState(s State) {
	a.state.Store(int32(s))
}

func (a *Agent) InterruptRequested() bool {
	return a.interruptRequested.Load()
}

// RequestInterrupt is idempotent; workers poll InterruptRequested at
// cancellation points (a new SSE line, after each mail-poll), and any
// context registered via SetCancel is canceled immediately so a blocking
// network read doesn't have to wait for its own next poll to notice.
func (a *Agent) RequestInterrupt() {
	a.interruptRequested.Store(true)
	if cancel := a.cancel.Load(); cancel != nil {
		(*cancel)()
	}
}

// ClearInterrupt is called when the agent transitions back to IDLE.
func (a *Agent) ClearInterrupt() {
	a.interruptRequested.Store(false)
}

// SetCancel registers the cancel func for the context backing the agent's
// current turn, so a later RequestInterrupt can cut it short. Call
// ClearCancel once the turn ends, successfully or not, so a stale cancel
// func from a finished turn is never retained.
func (a *Agent) SetCancel(cancel context.CancelFunc) {
	a.cancel.Store(&cancel)
}

func (a *Agent) ClearCancel() {
	a.cancel.Store(nil)
}

func (a *Agent) ToolThreadRunning() bool {
	return a.toolThreadRunning.Load()
}

func (a *Agent) SetToolThreadRunning(v bool) {
	a.toolThreadRunning.Store(v)
}

func (a *Agent) ForkPending() bool {
	return a.forkPending.Load()
}

// TryBeginFork acquires the fork_pending guard, returning false if a fork is
// already in flight.
func (a *Agent) TryBeginFork() bool {
	return a.forkPending.CompareAndSwap(false, true)
}

func (a *Agent) EndFork() {
	a.forkPending.Store(false)
}

// AddMessage appends a message to the agent's history. The caller must not
// retain a mutable alias to msg's content blocks afterward.
func (a *Agent) AddMessage(msg message.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
}

// Messages returns the agent's history. Callers that need to hand it to a
// provider or a forked child must Clone it first.
func (a *Agent) Messages() []message.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]message.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *Agent) MessageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

// Clear resets the message sequence and marks, as required by /clear: marks
// pointing past the end of a truncated sequence would otherwise dangle.
func (a *Agent) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = make([]message.Message, 0, initialMessageCapacity)
	a.Marks = nil
	a.Scrollback = nil
}

// Mark records a bookmark at the current end of history.
func (a *Agent) Mark(label string) Mark {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := Mark{Label: label, MessageIndex: len(a.messages)}
	a.Marks = append(a.Marks, m)
	return m
}

// Rewind truncates history to m's message index, drops every mark strictly
// after m, and preserves m itself for reuse.
func (a *Agent) Rewind(m Mark) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m.MessageIndex < len(a.messages) {
		a.messages = a.messages[:m.MessageIndex]
	}
	kept := a.Marks[:0]
	for _, mk := range a.Marks {
		if mk.MessageIndex <= m.MessageIndex {
			kept = append(kept, mk)
		}
	}
	a.Marks = kept
}

// CanContinueToolLoop reports whether the provider's tool_calls completion
// may trigger another iteration. A nil maxToolTurns means the config key was
// left unset, which is unlimited; a non-nil value is an explicit bound,
// including zero or negative, which disables the loop outright. The two
// must stay distinct: koanf leaves the field nil when the key is absent from
// config.yml and only populates it when the user writes max_tool_turns, so
// an explicit "0" is a real, intentional request to turn tool calls off.
func (a *Agent) CanContinueToolLoop(maxToolTurns *int) bool {
	if maxToolTurns == nil {
		return true
	}
	return a.ToolIterationCount < *maxToolTurns
}
