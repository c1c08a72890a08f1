package dynamodb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vecfs/blockstore"
	"github.com/hupe1980/vecfs/internal/hash"
	"github.com/hupe1980/vecfs/layout"
)

const (
	attrIndex = "index"
	attrBlock = "block"
	attrData  = "data"
	attrCRC   = "crc"
)

// Client is the subset of the DynamoDB API used by Store.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store implements blockstore.Backend on DynamoDB.
type Store struct {
	client         Client
	table          string
	index          string
	consistentRead bool
}

var _ blockstore.Backend = (*Store)(nil)

// NewStore creates a DynamoDB block store. index names the partition holding
// this store's blocks, so several indexes can share a table.
func NewStore(client Client, table, index string) *Store {
	return &Store{client: client, table: table, index: index, consistentRead: true}
}

func (s *Store) key(id layout.BlockID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrIndex: &types.AttributeValueMemberS{Value: s.index},
		attrBlock: &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(id), 10)},
	}
}

// ReadBlock fetches a block item with a strongly consistent read.
func (s *Store) ReadBlock(ctx context.Context, id layout.BlockID) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(s.consistentRead),
	})
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, blockstore.ErrNotFound
	}

	data, ok := out.Item[attrData].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("block %d: missing data attribute: %w", id, blockstore.ErrInvalidBlock)
	}
	if err := blockstore.CheckBlock(data.Value); err != nil {
		return nil, fmt.Errorf("block %d: %w", id, err)
	}
	if crc, ok := out.Item[attrCRC].(*types.AttributeValueMemberN); ok {
		want, err := strconv.ParseUint(crc.Value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("block %d: bad crc attribute: %w", id, err)
		}
		if got, ok := hash.Verify(data.Value, uint32(want)); !ok {
			return nil, fmt.Errorf("block %d: item crc %08x != %08x: %w", id, got, want, blockstore.ErrInvalidBlock)
		}
	}
	return data.Value, nil
}

// WriteBlock replaces the block item.
func (s *Store) WriteBlock(ctx context.Context, id layout.BlockID, data []byte) error {
	if err := blockstore.CheckBlock(data); err != nil {
		return err
	}
	item := s.key(id)
	item[attrData] = &types.AttributeValueMemberB{Value: data}
	item[attrCRC] = &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(hash.CRC32C(data)), 10)}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put block %d: %w", id, err)
	}
	return nil
}

// DeleteBlock removes the block item.
func (s *Store) DeleteBlock(ctx context.Context, id layout.BlockID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(id),
	})
	if err != nil {
		return fmt.Errorf("delete block %d: %w", id, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Store) Close() error { return nil }
