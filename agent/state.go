// Package agent implements a single conversation participant: its message
// history, its state machine, and the atomic flags its worker goroutines
// and the main Bubble Tea loop coordinate through.
package agent

type State int32

const (
	StateIdle State = iota
	StateWaitingForLLM
	StateStreaming
	StateExecutingTool
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitingForLLM:
		return "WAITING_FOR_LLM"
	case StateStreaming:
		return "STREAMING"
	case StateExecutingTool:
		return "EXECUTING_TOOL"
	default:
		return "UNKNOWN"
	}
}

// ThinkingLevel controls how much extended-reasoning budget a request asks
// the provider for.
type ThinkingLevel string

const (
	ThinkingNone   ThinkingLevel = "none"
	ThinkingLow    ThinkingLevel = "low"
	ThinkingMedium ThinkingLevel = "medium"
	ThinkingHigh   ThinkingLevel = "high"
)

// ParseThinkingLevel coerces s to one of the four known levels, silently
// falling back to ThinkingNone for anything unrecognized. Every external
// input site (the /model command, config, a fork's thinking_level override)
// routes through this rather than a bare ThinkingLevel(s) conversion, so a
// typo degrades to "no extended reasoning" instead of being sent to the
// provider verbatim.
func ParseThinkingLevel(s string) ThinkingLevel {
	switch ThinkingLevel(s) {
	case ThinkingLow:
		return ThinkingLow
	case ThinkingMedium:
		return ThinkingMedium
	case ThinkingHigh:
		return ThinkingHigh
	default:
		return ThinkingNone
	}
}
