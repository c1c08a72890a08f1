package dynamodb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory table keyed by index and block.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(key map[string]types.AttributeValue) string {
	return key[attrIndex].(*types.AttributeValueMemberS).Value + ":" + key[attrBlock].(*types.AttributeValueMemberN).Value
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.items[itemKey(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return &dynamodb.GetItemOutput{Item: m.items[itemKey(params.Key)]}, nil
}

func (m *mockDDBClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func testBlock(seed byte) []byte {
	b := make([]byte, layout.BlockSize)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	a := NewStore(client, "blocks", "a")
	b := NewStore(client, "blocks", "b")

	require.NoError(t, a.WriteBlock(ctx, 1, testBlock(1)))
	require.NoError(t, b.WriteBlock(ctx, 1, testBlock(2)))

	got, err := a.ReadBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, testBlock(1), got)

	got, err = b.ReadBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, testBlock(2), got)

	require.NoError(t, a.DeleteBlock(ctx, 1))
	_, err = a.ReadBlock(ctx, 1)
	assert.ErrorIs(t, err, blockstore.ErrNotFound)

	_, err = b.ReadBlock(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestStore_DetectsItemCorruption(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	s := NewStore(client, "blocks", "a")
	require.NoError(t, s.WriteBlock(ctx, 4, testBlock(0)))

	item := client.items["a:4"]
	item[attrData].(*types.AttributeValueMemberB).Value[100] ^= 0xFF

	_, err := s.ReadBlock(ctx, 4)
	assert.ErrorIs(t, err, blockstore.ErrInvalidBlock)
}

func TestStore_PropagatesErrors(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	client.err = errors.New("throttled")
	s := NewStore(client, "blocks", "a")

	assert.ErrorContains(t, s.WriteBlock(ctx, 1, testBlock(0)), "throttled")
	_, err := s.ReadBlock(ctx, 1)
	assert.ErrorContains(t, err, "throttled")
	assert.ErrorIs(t, s.WriteBlock(ctx, 1, []byte{1}), blockstore.ErrInvalidBlock)
}
