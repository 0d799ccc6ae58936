package provider

import (
	"fmt"

	"github.com/mgreenly/ikigai-sub013/common"
)

// Factory resolves a common.Provider name to a Provider implementation.
type Factory func(common.Provider) (Provider, error)

// registry maps provider names to their adapters. It is declared here, not
// in this package's adapters (openai/anthropic/google), to avoid a cyclic
// import between provider and its subpackages; cmd/ikigai/run.go fills it
// with one Register call per built-in adapter, and Resolve reads from it.
var registry = map[common.Provider]Provider{}

func Register(name common.Provider, p Provider) {
	registry[name] = p
}

func Resolve(name common.Provider) (Provider, error) {
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q", name)
	}
	return p, nil
}
