package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	args *redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = a
	if f.err != nil {
		cmd := redis.NewStringCmd(ctx)
		cmd.SetErr(f.err)
		return cmd
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

func TestNotifier_SendVerification(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	n := New(stream, "account-events", "https://app.example.com/verify")
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	require.NoError(t, n.SendVerification(context.Background(), "alice@example.com", "tok"))

	require.NotNil(t, stream.args)
	assert.Equal(t, "account-events", stream.args.Stream)

	values, ok := stream.args.Values.(map[string]any)
	require.True(t, ok)
	raw, ok := values["event"].([]byte)
	require.True(t, ok)

	var event Event
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, EventVerificationRequested, event.Type)
	assert.True(t, event.Timestamp.Equal(fixed))
	assert.Equal(t, "alice@example.com", event.Data.Email)
	assert.Equal(t, "tok", event.Data.Token)
	assert.Equal(t, "https://app.example.com/verify?token=tok", event.Data.Link)
}

func TestNotifier_SendVerification_Error(t *testing.T) {
	t.Parallel()

	addErr := errors.New("connection refused")
	n := New(&fakeStream{err: addErr}, "account-events", "https://app.example.com/verify")

	err := n.SendVerification(context.Background(), "alice@example.com", "tok")
	assert.ErrorIs(t, err, addErr)
}
