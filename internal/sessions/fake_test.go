package sessions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeRegistry_EnsureThenSend(t *testing.T) {
	ctx := context.Background()
	r := NewFakeRegistry()

	require.NoError(t, r.EnsureSession(ctx, "agent:a:subagent:x", "sonnet", "To Do", 5000))
	require.NoError(t, r.SendToSession(ctx, "agent:a:subagent:x", "do the thing", SendOptions{Model: "sonnet"}))

	require.Equal(t, []string{"do the thing"}, r.MessagesFor("agent:a:subagent:x"))
}

func TestFakeRegistry_SendToUnknownSessionFails(t *testing.T) {
	r := NewFakeRegistry()
	err := r.SendToSession(context.Background(), "nope", "msg", SendOptions{})
	require.Error(t, err)
}

func TestFakeRegistry_ListLiveSessionKeysUnknownState(t *testing.T) {
	ctx := context.Background()
	r := NewFakeRegistry()
	require.NoError(t, r.EnsureSession(ctx, "k1", "sonnet", "Doing", 0))

	keys, known, err := r.ListLiveSessionKeys(ctx)
	require.NoError(t, err)
	require.True(t, known)
	require.True(t, keys["k1"])

	r.SetUnknown(true)
	keys, known, err = r.ListLiveSessionKeys(ctx)
	require.NoError(t, err)
	require.False(t, known)
	require.Nil(t, keys)
}

func TestFakeRegistry_MarkDeadRemovesFromLiveSet(t *testing.T) {
	ctx := context.Background()
	r := NewFakeRegistry()
	require.NoError(t, r.EnsureSession(ctx, "k1", "sonnet", "Doing", 0))
	r.MarkDead("k1")

	keys, known, err := r.ListLiveSessionKeys(ctx)
	require.NoError(t, err)
	require.True(t, known)
	require.False(t, keys["k1"])
}

func TestFakeRegistry_DeleteSession(t *testing.T) {
	ctx := context.Background()
	r := NewFakeRegistry()
	require.NoError(t, r.EnsureSession(ctx, "k1", "sonnet", "Doing", 0))
	require.NoError(t, r.DeleteSession(ctx, "k1"))

	err := r.SendToSession(ctx, "k1", "msg", SendOptions{})
	require.Error(t, err)
}
