package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	withLocation := New(NotFound, "store.GetAgent", "agent xyz")
	assert.Equal(t, "store.GetAgent: NotFound: agent xyz", withLocation.Error())

	withoutLocation := New(InvalidArg, "", "bad input")
	assert.Equal(t, "InvalidArg: bad input", withoutLocation.Error())
}

func TestWrapUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	wrapped := Wrap(DbError, "store.InsertAgent", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "store.InsertAgent: DbError: disk full", wrapped.Error())
}
