package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mgreenly/ikigai-sub013/agent"
	"github.com/mgreenly/ikigai-sub013/common"
	"github.com/mgreenly/ikigai-sub013/coordinator"
	"github.com/mgreenly/ikigai-sub013/message"
	gprovider "github.com/mgreenly/ikigai-sub013/provider"
	"github.com/mgreenly/ikigai-sub013/secret_manager"
	sqlitestore "github.com/mgreenly/ikigai-sub013/store/sqlite"
	"github.com/mgreenly/ikigai-sub013/tool"
	"github.com/mgreenly/ikigai-sub013/tui"
)

// engine runs the tool-call loop (§4.2's state machine) as a sequence of
// tea.Cmds: each Stream/tool-execute step happens on its own goroutine and
// reports back through a tea.Msg, so the Bubble Tea Update loop is the only
// place agent state actually changes.
type engine struct {
	coord        *coordinator.Coordinator
	registry     *tool.Registry
	secrets      secret_manager.SecretManagerContainer
	maxToolTurns *int
	store        *sqlitestore.Storage
}

func newEngine(coord *coordinator.Coordinator, registry *tool.Registry, secrets secret_manager.SecretManagerContainer, maxToolTurns *int, store *sqlitestore.Storage) *engine {
	return &engine{coord: coord, registry: registry, secrets: secrets, maxToolTurns: maxToolTurns, store: store}
}

func (e *engine) submitCmd(ctx context.Context, prompt string) tea.Cmd {
	cur := e.coord.Current()
	if cur == nil {
		return nil
	}
	cur.AddMessage(message.Message{
		Role:    message.RoleUser,
		Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: prompt}},
	})
	_, _ = e.store.InsertMessage(ctx, "", cur.UUID, sqlitestore.MessageKindUser,
		message.Message{Role: message.RoleUser, Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: prompt}}}, "")
	cur.ToolIterationCount = 0
	return e.stepCmd(ctx, cur)
}

// stepCmd runs one WAITING_FOR_LLM -> STREAMING -> (IDLE | EXECUTING_TOOL)
// transition. The streaming portion reports back through a chain of
// StreamDeltaMsg values so the Bubble Tea Update loop can append each chunk
// to scrollback as it arrives rather than waiting for the whole response;
// once the provider's events channel closes, the chain's terminal command
// resumes this goroutine to finish the turn, and for the tool-call branch
// chains straight into tool execution and the next WAITING_FOR_LLM step
// without returning control to the UI in between.
func (e *engine) stepCmd(ctx context.Context, a *agent.Agent) tea.Cmd {
	return func() tea.Msg {
		a.SetState(agent.StateWaitingForLLM)

		p, err := gprovider.Resolve(common.Provider(a.Provider))
		if err != nil {
			a.SetState(agent.StateIdle)
			return tui.StreamDoneMsg{Line: tui.ScrollbackLine("error", err.Error())}
		}

		events := make(chan gprovider.Event, 16)
		done := make(chan struct{})
		var resp *gprovider.Response
		var streamErr error

		turnCtx, cancel := context.WithCancel(ctx)
		a.SetCancel(cancel)

		effort := string(a.ThinkingLevel)
		if a.ThinkingLevel == agent.ThinkingNone {
			effort = ""
		}

		go func() {
			defer close(done)
			defer close(events)
			resp, streamErr = p.Stream(turnCtx, gprovider.Options{
				Params: gprovider.Params{
					Messages: a.Messages(),
					Tools:    e.registry.Tools(nil),
					ModelConfig: common.ModelConfig{
						Provider:        a.Provider,
						Model:           a.Model,
						ReasoningEffort: effort,
					},
				},
				Secrets: e.secrets,
			}, events)
		}()

		a.SetState(agent.StateStreaming)
		return e.drainStreamCmd(events, func() tea.Msg {
			<-done
			cancel()
			a.ClearCancel()
			return e.finishStepCmd(ctx, a, resp, streamErr)()
		})()
	}
}

// drainStreamCmd reads one event off events per tea.Cmd invocation, translating
// text deltas into tui.StreamDeltaMsg and chaining into itself for the next
// event; when events closes (the provider goroutine returned, win or lose)
// it hands off to after.
func (e *engine) drainStreamCmd(events <-chan gprovider.Event, after tea.Cmd) tea.Cmd {
	return func() tea.Msg {
		for ev := range events {
			if ev.Type != gprovider.EventTextDelta || ev.Text == "" {
				continue
			}
			return tui.StreamDeltaMsg{Text: ev.Text, Next: e.drainStreamCmd(events, after)}
		}
		return after()
	}
}

// finishStepCmd runs the part of a turn that only makes sense once the
// stream has fully drained: interrupt/error handling, persisting the
// assistant message, and either returning to IDLE or running the tool loop.
func (e *engine) finishStepCmd(ctx context.Context, a *agent.Agent, resp *gprovider.Response, streamErr error) tea.Cmd {
	return func() tea.Msg {
		if a.InterruptRequested() {
			a.ClearInterrupt()
			a.SetState(agent.StateIdle)
			return tui.StreamDoneMsg{Line: tui.ScrollbackLine("warning", "interrupted")}
		}
		if streamErr != nil {
			a.SetState(agent.StateIdle)
			return tui.StreamDoneMsg{Line: tui.ScrollbackLine("error", streamErr.Error())}
		}

		a.AddMessage(resp.Output)
		_, _ = e.store.InsertMessage(ctx, "", a.UUID, sqlitestore.MessageKindAssistant, resp.Output, "")

		toolCalls := collectToolCalls(resp.Output)
		if len(toolCalls) == 0 || !a.CanContinueToolLoop(e.maxToolTurns) {
			a.SetState(agent.StateIdle)
			return tui.StreamDoneMsg{Line: lastText(resp.Output)}
		}

		a.SetState(agent.StateExecutingTool)
		for _, tc := range toolCalls {
			result, isError, err := e.registry.Execute(ctx, tc.Name, tc.Arguments)
			if err != nil {
				result, isError = err.Error(), true
			}
			toolResult := message.Message{
				Role: message.RoleUser,
				Content: []message.ContentBlock{{
					Type:       message.ContentBlockTypeToolResult,
					ToolResult: &message.ToolResultBlock{ToolCallID: tc.ID, Name: tc.Name, IsError: isError, Text: result},
				}},
			}
			a.AddMessage(toolResult)
			_, _ = e.store.InsertMessage(ctx, "", a.UUID, sqlitestore.MessageKindTool, toolResult, "")
			a.ToolIterationCount++
		}

		return e.stepCmd(ctx, a)()
	}
}

func collectToolCalls(m message.Message) []*message.ToolUseBlock {
	var out []*message.ToolUseBlock
	for i := range m.Content {
		if m.Content[i].Type == message.ContentBlockTypeToolUse {
			out = append(out, m.Content[i].ToolUse)
		}
	}
	return out
}

func lastText(m message.Message) string {
	for i := len(m.Content) - 1; i >= 0; i-- {
		if m.Content[i].Type == message.ContentBlockTypeText {
			return m.Content[i].Text
		}
	}
	return ""
}

func (e *engine) slashCmd(ctx context.Context, line string) tea.Cmd {
	cmd := tui.ParseSlash(line)
	return func() tea.Msg {
		switch cmd.Name {
		case "fork":
			cur := e.coord.Current()
			if cur == nil {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", "no current agent")}
			}
			child, err := e.coord.Fork(ctx, coordinator.ForkOptions{
				Parent: cur, UserInitiated: true, Prompt: strings.Join(cmd.Args, " "),
			})
			if err != nil {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", err.Error())}
			}
			return tui.LineMsg{Line: fmt.Sprintf("forked %s", child.UUID)}

		case "kill":
			if len(cmd.Args) == 0 {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", "usage: /kill <uuid-prefix>")}
			}
			target := e.coord.FindAgent(cmd.Args[0])
			if target == nil {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", "no such agent")}
			}
			cur := e.coord.Current()
			var callerUUID string
			if cur != nil {
				callerUUID = cur.UUID
			}
			if err := e.coord.Kill(ctx, target.UUID, callerUUID, e.store.MarkAgentDead); err != nil {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", err.Error())}
			}
			return tui.LineMsg{Line: fmt.Sprintf("killed %s", target.UUID)}

		case "clear":
			if cur := e.coord.Current(); cur != nil {
				cur.Clear()
			}
			return tui.LineMsg{Line: "cleared"}

		case "mark":
			label := strings.Join(cmd.Args, " ")
			cur := e.coord.Current()
			if cur == nil {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", "no current agent")}
			}
			m := cur.Mark(label)
			return tui.LineMsg{Line: fmt.Sprintf("marked at message %d", m.MessageIndex)}

		case "rewind":
			cur := e.coord.Current()
			if cur == nil || len(cur.Marks) == 0 {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", "no marks")}
			}
			target := cur.Marks[len(cur.Marks)-1]
			for _, mk := range cur.Marks {
				if len(cmd.Args) > 0 && mk.Label == cmd.Args[0] {
					target = mk
				}
			}
			cur.Rewind(target)
			return tui.LineMsg{Line: fmt.Sprintf("rewound to message %d", target.MessageIndex)}

		case "model":
			if len(cmd.Args) == 0 {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", "usage: /model <provider/model[/thinking]>")}
			}
			parts := strings.SplitN(cmd.Args[0], "/", 3)
			cur := e.coord.Current()
			if cur == nil {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", "no current agent")}
			}
			if len(parts) > 0 {
				cur.Provider = parts[0]
			}
			if len(parts) > 1 {
				cur.Model = parts[1]
			}
			if len(parts) > 2 {
				cur.ThinkingLevel = agent.ParseThinkingLevel(parts[2])
			}
			return tui.LineMsg{Line: "model updated"}

		case "agents":
			var b strings.Builder
			for _, a := range e.coord.ListLive() {
				fmt.Fprintf(&b, "%s %s/%s\n", a.UUID, a.Provider, a.Model)
			}
			return tui.LineMsg{Line: b.String()}

		case "wait":
			if len(cmd.Args) == 0 {
				return tui.LineMsg{Line: tui.ScrollbackLine("error", "usage: /wait <timeout> [uuid...]")}
			}
			timeout, _ := strconv.Atoi(cmd.Args[0])
			_ = timeout
			return tui.LineMsg{Line: "use the wait tool from within an agent's own turn"}

		default:
			return tui.LineMsg{Line: tui.ScrollbackLine("error", "unknown command: /"+cmd.Name)}
		}
	}
}
