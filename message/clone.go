package message

import (
	"fmt"

	"github.com/mgreenly/ikigai-sub013/errkind"
)

// DefaultMaxMessageBytes bounds a single cloned message's marshaled size.
// Forking an agent whose history contains a message over this size fails
// with errkind.AllocError rather than silently truncating content.
const DefaultMaxMessageBytes = 8 << 20 // 8 MiB

// CloneAll clones every message in history, enforcing maxBytes per message
// (0 means DefaultMaxMessageBytes). Used by fork to give the child agent its
// own independent copy of the parent's history up to the fork point.
func CloneAll(history []Message, maxBytes int) ([]Message, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	out := make([]Message, len(history))
	for i, m := range history {
		if size := m.ByteSize(); size > maxBytes {
			return nil, errkind.New(errkind.AllocError, "message.CloneAll",
				fmt.Sprintf("message %d is %d bytes, exceeds MaxMessageBytes %d", i, size, maxBytes))
		}
		out[i] = m.Clone()
	}
	return out, nil
}
