package dynamodb

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/library"
	"github.com/trickstertwo/xport/library/librarytest"
)

// mockDynamo keeps one table in memory and understands the calls the adapter makes.
type mockDynamo struct {
	dynamodbiface.DynamoDBAPI

	mu      sync.Mutex
	exists  bool
	created int
	items   map[string]map[string]*dynamodb.AttributeValue
}

func newMockDynamo(exists bool) *mockDynamo {
	return &mockDynamo{exists: exists, items: map[string]map[string]*dynamodb.AttributeValue{}}
}

func (m *mockDynamo) DescribeTableWithContext(aws.Context, *dynamodb.DescribeTableInput, ...request.Option) (*dynamodb.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table not found", nil)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockDynamo) CreateTableWithContext(aws.Context, *dynamodb.CreateTableInput, ...request.Option) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = true
	m.created++
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockDynamo) WaitUntilTableExistsWithContext(aws.Context, *dynamodb.DescribeTableInput, ...request.WaiterOption) error {
	return nil
}

func (m *mockDynamo) TransactWriteItemsWithContext(_ aws.Context, in *dynamodb.TransactWriteItemsInput, _ ...request.Option) (*dynamodb.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reasons := make([]string, len(in.TransactItems))
	failed := false
	for i, it := range in.TransactItems {
		reasons[i] = "None"
		if _, ok := m.items[aws.StringValue(it.Put.Item[ColISBN].S)]; ok {
			reasons[i] = excConditionalCheckFailed
			failed = true
		}
	}
	if failed {
		return nil, awserr.New(dynamodb.ErrCodeTransactionCanceledException,
			"Transaction cancelled, please refer cancellation reasons for specific reasons ["+joinReasons(reasons)+"]", nil)
	}
	for _, it := range in.TransactItems {
		m.items[aws.StringValue(it.Put.Item[ColISBN].S)] = it.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (m *mockDynamo) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: m.items[aws.StringValue(in.Key[ColISBN].S)]}, nil
}

func (m *mockDynamo) ScanPagesWithContext(_ aws.Context, in *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, _ ...request.Option) error {
	m.mu.Lock()
	var items []map[string]*dynamodb.AttributeValue
	for _, item := range m.items {
		if in.FilterExpression != nil {
			col := aws.StringValue(in.ExpressionAttributeNames["#F"])
			want := aws.StringValue(in.ExpressionAttributeValues[":v"].S)
			if aws.StringValue(item[col].S) != want {
				continue
			}
		}
		items = append(items, item)
	}
	m.mu.Unlock()

	// Two pages to exercise pagination.
	half := len(items) / 2
	if !fn(&dynamodb.ScanOutput{Items: items[:half]}, false) {
		return nil
	}
	fn(&dynamodb.ScanOutput{Items: items[half:]}, true)
	return nil
}

func joinReasons(r []string) string {
	out := ""
	for i, s := range r {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func TestDatabaseContract(t *testing.T) {
	librarytest.RunDatabase(t, func(t *testing.T) library.Database {
		db := NewDatabase(newMockDynamo(true), "books")
		require.NoError(t, db.SetUp(context.Background()))
		return db
	}, librarytest.Reject)
}

func TestSetUp_CreatesMissingTable(t *testing.T) {
	mock := newMockDynamo(false)
	db := NewDatabase(mock, "books")
	db.create = true
	require.NoError(t, db.SetUp(context.Background()))
	require.NoError(t, db.SetUp(context.Background()))
	assert.Equal(t, 1, mock.created)
}

func TestSetUp_MissingTableWithoutCreate(t *testing.T) {
	db := NewDatabase(newMockDynamo(false), "books")
	assert.Error(t, db.SetUp(context.Background()))
}

func TestCommit_RejectsOversizedUnit(t *testing.T) {
	db := NewDatabase(newMockDynamo(true), "books")
	err := xport.Run(context.Background(), db.UnitOfWorkManager(), func(ctx context.Context, repo library.BookRepository) error {
		for i := 0; i <= maxTransactItems; i++ {
			b := librarytest.Dune
			b.ISBN = string(rune('a' + i))
			if err := repo.Save(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	assert.ErrorContains(t, err, "limit is 25")
}

func TestIsConditionFailure(t *testing.T) {
	assert.True(t, isConditionFailure(awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "x", nil)))
	assert.True(t, isConditionFailure(awserr.New(dynamodb.ErrCodeTransactionCanceledException, "cancelled [None, ConditionalCheckFailed]", nil)))
	assert.False(t, isConditionFailure(awserr.New(dynamodb.ErrCodeTransactionCanceledException, "cancelled [ThrottlingError]", nil)))
	assert.False(t, isConditionFailure(assert.AnError))
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(xport.Config{"table": "t", "create_table": "false"})
	assert.Equal(t, "t", cfg.Table)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.False(t, cfg.CreateTable)
}
