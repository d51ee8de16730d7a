package conversations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storewise-ai/server/internal/assistant/model"
	"github.com/storewise-ai/server/internal/assistant/repo"
)

func newTestManager(t *testing.T, maxTurns int) *MessagesManager {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := model.ConversationConfig{}
	cfg.Planner.MaxTurns = maxTurns
	return NewMessagesManager(repo.NewRedisConversationRepository(rdb, time.Hour), cfg)
}

func TestRecordMerchantMessage(t *testing.T) {
	cm := newTestManager(t, 6)
	ctx := context.Background()

	block, err := cm.RecordMerchantMessage(ctx, "c1", "show my products")
	require.NoError(t, err)

	assert.Contains(t, block, "<conversation_context>")
	assert.Contains(t, block, "UserMessage(show my products)")
	assert.Contains(t, block, "<current_message>")

	// the message was persisted
	msgs, err := cm.BuildSummaryContext(ctx, "c1", "sys")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
}

func TestRecordMerchantMessageIncludesHistory(t *testing.T) {
	cm := newTestManager(t, 6)
	ctx := context.Background()

	_, err := cm.RecordMerchantMessage(ctx, "c1", "show my products")
	require.NoError(t, err)
	require.NoError(t, cm.SaveResponse(ctx, "c1", "You have 12 products."))

	block, err := cm.RecordMerchantMessage(ctx, "c1", "and my orders?")
	require.NoError(t, err)

	assert.Contains(t, block, "UserMessage(show my products)")
	assert.Contains(t, block, "AssistantMessage(You have 12 products.)")
	assert.Contains(t, block, "UserMessage(and my orders?)")
}

func TestPlannerContextTrimsToMaxTurns(t *testing.T) {
	cm := newTestManager(t, 2)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := cm.RecordMerchantMessage(ctx, "c1", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	block, err := cm.RecordMerchantMessage(ctx, "c1", "message 5")
	require.NoError(t, err)

	assert.NotContains(t, block, "UserMessage(message 3)")
	assert.Contains(t, block, "UserMessage(message 4)")
	assert.Contains(t, block, "UserMessage(message 5)")
}

func TestBuildSummaryContextSystemFirst(t *testing.T) {
	cm := newTestManager(t, 6)
	ctx := context.Background()

	msgs, err := cm.BuildSummaryContext(ctx, "empty", "you are a store assistant")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "you are a store assistant", msgs[0].Content)
}

func TestTrimTail(t *testing.T) {
	mk := func(n int) []*schema.Message {
		out := make([]*schema.Message, n)
		for i := range out {
			out[i] = schema.UserMessage(fmt.Sprintf("m%d", i))
		}
		return out
	}

	assert.Len(t, trimTail(mk(3), 6), 3)
	assert.Len(t, trimTail(mk(10), 6), 6)
	assert.Len(t, trimTail(mk(10), 0), 10)

	tail := trimTail(mk(10), 2)
	assert.Equal(t, "m8", tail[0].Content)
	assert.Equal(t, "m9", tail[1].Content)
}
