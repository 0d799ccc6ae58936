// Package provider defines the neutral streaming interface every LLM backend
// implements, generalized from llm2's Provider/Options/Event shape in the
// teacher repo to ikigai's three built-in backends (OpenAI, Anthropic,
// Google).
package provider

import "context"

// Provider streams a single completion as a sequence of Events and returns
// the final synthesized message. Implementations MUST NOT close eventChan;
// the caller owns its lifecycle and closes it once Stream returns.
type Provider interface {
	Stream(ctx context.Context, options Options, eventChan chan<- Event) (*Response, error)
}
