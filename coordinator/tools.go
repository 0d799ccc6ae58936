package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/mgreenly/ikigai-sub013/agent"
	"github.com/mgreenly/ikigai-sub013/mailbus"
	"github.com/mgreenly/ikigai-sub013/tool"
)

// ForkToolParams is the schema for the tool-initiated fork the model can
// call directly (distinct from the user's /fork slash command, which calls
// Coordinator.Fork with UserInitiated: true).
type ForkToolParams struct {
	Prompt        string `json:"prompt" jsonschema:"required,description=Instruction for the new agent"`
	Model         string `json:"model,omitempty" jsonschema:"description=Override the parent's model; defaults to inheriting it"`
	ThinkingLevel string `json:"thinking_level,omitempty" jsonschema:"description=Override the parent's thinking level (none, low, medium, high); defaults to inheriting it"`
}

type KillToolParams struct {
	UUIDPrefix string `json:"uuid_prefix" jsonschema:"required,description=UUID prefix of the agent to kill"`
}

type WaitToolParams struct {
	TimeoutSeconds int      `json:"timeout_seconds" jsonschema:"required,description=Maximum seconds to block waiting for mail"`
	TargetUUIDs    []string `json:"target_uuids,omitempty" jsonschema:"description=Fan-in: wait for mail from any of these agents"`
}

// RegisterTools wires the fork/kill/wait builtins into r, closing over c and
// bus so each call operates on the live agent set without tool depending on
// coordinator (which would cycle, since coordinator already imports tool for
// the Registry type).
func (c *Coordinator) RegisterTools(r *tool.Registry, bus *mailbus.Bus, markDead func(ctx context.Context, uuid string) error, callerOf func(ctx context.Context) *agent.Agent) {
	r.Register("fork", "Create a new agent to work on a sub-task in parallel.", reflect.TypeOf(ForkToolParams{}),
		func(ctx context.Context, argsJSON string) (string, bool, error) {
			var p ForkToolParams
			if err := json.Unmarshal([]byte(argsJSON), &p); err != nil {
				return fmt.Sprintf("invalid arguments: %v", err), true, nil
			}
			parent := callerOf(ctx)
			if parent == nil {
				return "no calling agent in context", true, nil
			}
			var thinking agent.ThinkingLevel
			if p.ThinkingLevel != "" {
				thinking = agent.ParseThinkingLevel(p.ThinkingLevel)
			}
			child, err := c.Fork(ctx, ForkOptions{Parent: parent, Model: p.Model, ThinkingLevel: thinking, Prompt: p.Prompt})
			if err != nil {
				return err.Error(), true, nil
			}
			return fmt.Sprintf("forked agent %s", child.UUID), false, nil
		})

	r.Register("kill", "Kill another agent by UUID prefix.", reflect.TypeOf(KillToolParams{}),
		func(ctx context.Context, argsJSON string) (string, bool, error) {
			var p KillToolParams
			if err := json.Unmarshal([]byte(argsJSON), &p); err != nil {
				return fmt.Sprintf("invalid arguments: %v", err), true, nil
			}
			caller := callerOf(ctx)
			target := c.FindAgent(p.UUIDPrefix)
			if target == nil {
				if c.UUIDAmbiguous(p.UUIDPrefix) {
					return "ambiguous uuid prefix", true, nil
				}
				return "no such agent", true, nil
			}
			var callerUUID string
			if caller != nil {
				callerUUID = caller.UUID
			}
			if err := c.Kill(ctx, target.UUID, callerUUID, markDead); err != nil {
				return err.Error(), true, nil
			}
			return fmt.Sprintf("killed agent %s", target.UUID), false, nil
		})

	r.Register("wait", "Block until mail arrives from another agent, or until the timeout elapses.", reflect.TypeOf(WaitToolParams{}),
		func(ctx context.Context, argsJSON string) (string, bool, error) {
			var p WaitToolParams
			if err := json.Unmarshal([]byte(argsJSON), &p); err != nil {
				return fmt.Sprintf("invalid arguments: %v", err), true, nil
			}
			caller := callerOf(ctx)
			if caller == nil {
				return "no calling agent in context", true, nil
			}
			timeout := time.Duration(p.TimeoutSeconds) * time.Second

			if len(p.TargetUUIDs) > 0 {
				snapshots, err := c.waitFanIn(ctx, bus, caller, p.TargetUUIDs, timeout)
				if err != nil {
					return err.Error(), true, nil
				}
				out, _ := json.Marshal(snapshots)
				return string(out), false, nil
			}

			mail, err := bus.Wait(ctx, caller.UUID, nil, timeout, caller.InterruptRequested)
			if err != nil {
				return err.Error(), true, nil
			}
			if len(mail) == 0 {
				return "no mail received before timeout", false, nil
			}
			out, _ := json.Marshal(mail)
			return string(out), false, nil
		})
}

// TargetSnapshot is one entry of a /wait fan-in result: the polled target's
// agent_uuid, its status (received|running|idle|dead), and the body of its
// first unread message, if status is "received".
type TargetSnapshot struct {
	AgentUUID string `json:"agent_uuid"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// waitFanIn polls bus.PollUnreadFrom and the live agent set for each of
// targets until at least one entry reports "received", the caller's
// interrupt flag is set, ctx is canceled, or timeout elapses (a timeout of
// zero checks once and returns without blocking). Status for a target with
// no unread mail comes from the live agent set: "dead" if the target is no
// longer live, "idle" if its state machine is IDLE, "running" otherwise.
func (c *Coordinator) waitFanIn(ctx context.Context, bus *mailbus.Bus, caller *agent.Agent, targets []string, timeout time.Duration) ([]TargetSnapshot, error) {
	deadline := time.Now().Add(timeout)
	for {
		snapshots := make([]TargetSnapshot, 0, len(targets))
		received := false
		for _, uuid := range targets {
			mail, ok, err := bus.PollUnreadFrom(ctx, caller.UUID, uuid)
			if err != nil {
				return nil, err
			}
			if ok {
				snapshots = append(snapshots, TargetSnapshot{AgentUUID: uuid, Status: "received", Message: mail.Body})
				received = true
				continue
			}
			snapshots = append(snapshots, TargetSnapshot{AgentUUID: uuid, Status: c.agentStatus(uuid)})
		}
		if received || (caller.InterruptRequested()) {
			return snapshots, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return snapshots, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bus.PollInterval()):
		}
	}
}

// agentStatus reports "dead" for a target no longer in the live set, "idle"
// for a live agent whose state machine is IDLE, and "running" otherwise.
func (c *Coordinator) agentStatus(uuid string) string {
	c.mu.Lock()
	a, ok := c.agents[uuid]
	c.mu.Unlock()
	if !ok {
		return "dead"
	}
	if a.State() == agent.StateIdle {
		return "idle"
	}
	return "running"
}
