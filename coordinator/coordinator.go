// Package coordinator owns the live agent set: navigation between agents,
// fork, and kill. The Coordinator is the only thing allowed to mutate the
// live agents array; everything else reaches an Agent through it.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mgreenly/ikigai-sub013/agent"
	"github.com/mgreenly/ikigai-sub013/errkind"
	"github.com/mgreenly/ikigai-sub013/message"
)

// Store is the persistence surface the coordinator needs. store/sqlite.Storage
// satisfies it.
type Store interface {
	InsertAgentTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional surface used inside a fork.
type Tx interface {
	InsertAgent(ctx context.Context, a AgentRecord) error
	InsertForkMessage(ctx context.Context, sessionID, agentUUID string, role string, childUUID string) error
}

// AgentRecord is the persisted shape of a forked agent, kept free of a
// direct store/sqlite import so coordinator has no dependency on the
// concrete database package.
type AgentRecord struct {
	UUID          string
	SessionID     string
	ParentUUID    string
	Provider      string
	Model         string
	ThinkingLevel string
	ForkMessageID int64
}

type Coordinator struct {
	mu        sync.Mutex
	sessionID string
	agents    map[string]*agent.Agent
	order     []string // insertion order, for nav tie-breaks
	current   string
	store     Store
}

func New(sessionID string, store Store) *Coordinator {
	return &Coordinator{
		sessionID: sessionID,
		agents:    make(map[string]*agent.Agent),
		store:     store,
	}
}

// AddRoot registers the session's initial agent and makes it current.
func (c *Coordinator) AddRoot(a *agent.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[a.UUID] = a
	c.order = append(c.order, a.UUID)
	c.current = a.UUID
}

// AddAgent registers a restored agent without making it current, so a
// session resume can rebuild the whole live set before choosing which
// agent becomes current.
func (c *Coordinator) AddAgent(a *agent.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[a.UUID] = a
	c.order = append(c.order, a.UUID)
}

// SetCurrent makes uuid current. Unlike SwitchAgent it doesn't error on an
// unknown uuid, since a session-resume caller already knows uuid is among
// the agents it just added.
func (c *Coordinator) SetCurrent(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = uuid
}

func (c *Coordinator) Current() *agent.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agents[c.current]
}

// FindAgent returns the unique live agent whose UUID starts with prefix.
// Exact match wins over prefix match; nil if none or ambiguous.
func (c *Coordinator) FindAgent(prefix string) *agent.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.agents[prefix]; ok {
		return a
	}
	var match *agent.Agent
	for _, uuid := range c.order {
		if strings.HasPrefix(uuid, prefix) {
			if match != nil {
				return nil
			}
			match = c.agents[uuid]
		}
	}
	return match
}

func (c *Coordinator) UUIDAmbiguous(prefix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, uuid := range c.order {
		if strings.HasPrefix(uuid, prefix) {
			count++
		}
	}
	return count >= 2
}

// SwitchAgent replaces current and nothing else: the tui reads scrollback
// from whichever agent is current, while Agent.InputBuffer and
// Agent.ViewportOffset are neither saved nor restored on a switch.
func (c *Coordinator) SwitchAgent(uuid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.agents[uuid]; !ok {
		return errkind.New(errkind.InvalidArg, "coordinator.SwitchAgent", "no such live agent: "+uuid)
	}
	c.current = uuid
	return nil
}

func (c *Coordinator) siblings(parentUUID string) []*agent.Agent {
	var out []*agent.Agent
	for _, uuid := range c.order {
		a := c.agents[uuid]
		if a.ParentUUID == parentUUID {
			out = append(out, a)
		}
	}
	return out
}

// NavSibling moves to the next (delta=1) or previous (delta=-1) live
// sibling, wrapping. No-op when fewer than two siblings.
func (c *Coordinator) NavSibling(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.agents[c.current]
	sibs := c.siblings(cur.ParentUUID)
	if len(sibs) < 2 {
		return
	}
	idx := -1
	for i, s := range sibs {
		if s.UUID == cur.UUID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	next := ((idx+delta)%len(sibs) + len(sibs)) % len(sibs)
	c.current = sibs[next].UUID
}

// NavParent switches to current's parent if it is live; no-op otherwise.
func (c *Coordinator) NavParent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.agents[c.current]
	if cur.ParentUUID == "" {
		return
	}
	if _, ok := c.agents[cur.ParentUUID]; ok {
		c.current = cur.ParentUUID
	}
}

// NavChild switches to the live child with the greatest CreatedAt, ties
// broken by agent array order. No-op when no children.
func (c *Coordinator) NavChild() {
	c.mu.Lock()
	defer c.mu.Unlock()
	children := c.siblings(c.current)
	if len(children) == 0 {
		return
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].CreatedAt.After(children[j].CreatedAt)
	})
	c.current = children[0].UUID
}

// ListLive returns every live agent in array order.
func (c *Coordinator) ListLive() []*agent.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*agent.Agent, 0, len(c.order))
	for _, uuid := range c.order {
		out = append(out, c.agents[uuid])
	}
	return out
}

// ForkOptions configures a fork request.
type ForkOptions struct {
	Parent          *agent.Agent
	Provider        string
	Model           string
	ThinkingLevel   agent.ThinkingLevel
	Prompt          string
	UserInitiated   bool
	HistoryOverride []message.Message // pre-cloned history for the tool-initiated path
}

var (
	ErrForkInProgress = fmt.Errorf("a fork is already in progress")
)

// forkWaitPollInterval bounds how often Fork re-checks the parent's
// tool-thread flag before proceeding, matching the wait tool's polling
// granularity.
const forkWaitPollInterval = 40 * time.Millisecond

// waitToolThreadIdle blocks until a.ToolThreadRunning() is false or ctx is
// canceled, enforcing the precondition that no tool call is in flight on the
// parent when a fork begins.
func waitToolThreadIdle(ctx context.Context, a *agent.Agent) error {
	for a.ToolThreadRunning() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(forkWaitPollInterval):
		}
	}
	return nil
}

// Fork performs the transactional fork sequence from the parent: record
// fork_message_id, allocate the child, optionally deep-copy history
// (user-initiated only), persist, and make the child live.
func (c *Coordinator) Fork(ctx context.Context, opts ForkOptions) (*agent.Agent, error) {
	if !opts.Parent.TryBeginFork() {
		return nil, ErrForkInProgress
	}
	defer opts.Parent.EndFork()

	if err := waitToolThreadIdle(ctx, opts.Parent); err != nil {
		return nil, err
	}

	provider := opts.Provider
	if provider == "" {
		provider = opts.Parent.Provider
	}
	model := opts.Model
	if model == "" {
		model = opts.Parent.Model
	}
	thinking := opts.ThinkingLevel
	if thinking == "" {
		thinking = opts.Parent.ThinkingLevel
	}

	child := agent.New(opts.Parent.UUID, provider, model, thinking)
	forkMessageID := int64(opts.Parent.MessageCount())
	child.ForkMessageID = forkMessageID

	if opts.UserInitiated {
		history, err := message.CloneAll(opts.Parent.Messages(), 0)
		if err != nil {
			return nil, err
		}
		for _, m := range history {
			child.AddMessage(m)
		}
	} else {
		if text, ok := message.LastNonThinkingAssistantText(opts.Parent.Messages()); ok {
			child.AddMessage(message.Message{
				Role: message.RoleUser,
				Content: []message.ContentBlock{{
					Type:             message.ContentBlockTypeText,
					Text:             text,
					ProviderMetadata: "forked_context",
				}},
			})
		}
		for _, m := range opts.HistoryOverride {
			child.AddMessage(m)
		}
	}

	if opts.Prompt != "" {
		child.AddMessage(message.Message{
			Role:    message.RoleUser,
			Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: opts.Prompt}},
		})
	}

	err := c.store.InsertAgentTx(ctx, func(tx Tx) error {
		if err := tx.InsertAgent(ctx, AgentRecord{
			UUID: child.UUID, SessionID: c.sessionID, ParentUUID: opts.Parent.UUID,
			Provider: provider, Model: model, ThinkingLevel: string(thinking), ForkMessageID: forkMessageID,
		}); err != nil {
			return err
		}
		if err := tx.InsertForkMessage(ctx, c.sessionID, opts.Parent.UUID, "parent", child.UUID); err != nil {
			return err
		}
		return tx.InsertForkMessage(ctx, c.sessionID, child.UUID, "child", child.UUID)
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.DbError, "coordinator.Fork", err)
	}

	c.mu.Lock()
	c.agents[child.UUID] = child
	c.order = append(c.order, child.UUID)
	c.current = child.UUID
	c.mu.Unlock()

	return child, nil
}

var (
	ErrCannotKillRoot   = fmt.Errorf("CANNOT_KILL_ROOT")
	ErrCannotKillParent = fmt.Errorf("CANNOT_KILL_PARENT")
	ErrAlreadyDead      = fmt.Errorf("ALREADY_DEAD")
)

// Kill marks target dead and removes it from the live set. callerUUID is
// the agent issuing the kill, used to enforce CANNOT_KILL_PARENT.
func (c *Coordinator) Kill(ctx context.Context, targetUUID, callerUUID string, markDead func(ctx context.Context, uuid string) error) error {
	c.mu.Lock()
	target, ok := c.agents[targetUUID]
	if !ok {
		c.mu.Unlock()
		return ErrAlreadyDead
	}
	if target.IsRoot() {
		c.mu.Unlock()
		return ErrCannotKillRoot
	}
	if c.isAncestor(targetUUID, callerUUID) {
		c.mu.Unlock()
		return ErrCannotKillParent
	}
	c.mu.Unlock()

	if err := markDead(ctx, targetUUID); err != nil {
		return errkind.Wrap(errkind.DbError, "coordinator.Kill", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.agents, targetUUID)
	for i, uuid := range c.order {
		if uuid == targetUUID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.current == targetUUID {
		c.current = c.selectAfterKillLocked(target)
	}
	return nil
}

// selectAfterKillLocked picks the next current agent once target (no longer
// live) has stopped being current: target's parent if it is still live,
// else the session root, else the first live agent in insertion order, else
// "" if none remain. Must be called with c.mu held.
func (c *Coordinator) selectAfterKillLocked(target *agent.Agent) string {
	if target.ParentUUID != "" {
		if _, ok := c.agents[target.ParentUUID]; ok {
			return target.ParentUUID
		}
	}
	for _, uuid := range c.order {
		if c.agents[uuid].IsRoot() {
			return uuid
		}
	}
	if len(c.order) > 0 {
		return c.order[0]
	}
	return ""
}

// isAncestor reports whether candidateAncestor is a (transitive) ancestor
// of uuid. Must be called with c.mu held.
func (c *Coordinator) isAncestor(candidateAncestor, uuid string) bool {
	cur, ok := c.agents[uuid]
	for ok {
		if cur.ParentUUID == candidateAncestor {
			return true
		}
		cur, ok = c.agents[cur.ParentUUID]
	}
	return false
}
