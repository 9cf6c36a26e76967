package scriptbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleRegisteredCommand(t *testing.T) {
	b := New()
	b.Register("/echo", func(nickname string, admin bool, args []string) string {
		return nickname + " said " + args[0]
	})

	handled, reply := b.Handle("alice", false, "/echo", []string{"hi"})
	assert.True(t, handled)
	assert.Equal(t, "alice said hi", reply)
}

func TestHandleUnknownCommandNotHandled(t *testing.T) {
	b := New()
	handled, reply := b.Handle("alice", false, "/nope", nil)
	assert.False(t, handled)
	assert.Empty(t, reply)
}

func TestRegisterReplacesExistingHandler(t *testing.T) {
	b := New()
	b.Register("/x", func(string, bool, []string) string { return "first" })
	b.Register("/x", func(string, bool, []string) string { return "second" })

	_, reply := b.Handle("a", false, "/x", nil)
	assert.Equal(t, "second", reply)
}
