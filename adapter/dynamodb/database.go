package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/trickstertwo/xport/library"
)

const (
	ColISBN    = "isbn"
	ColName    = "name"
	ColAuthor  = "author"
	ColContent = "content"

	// maxTransactItems is the TransactWriteItems limit.
	maxTransactItems = 25

	excConditionalCheckFailed = "ConditionalCheckFailed"
)

var _ library.Database = (*Database)(nil)

// Database writes each unit of work as one TransactWriteItems call whose puts are
// conditional on the ISBN being new.
type Database struct {
	Service   dynamodbiface.DynamoDBAPI
	TableName string
	create    bool
}

// Open builds an AWS session from cfg.
func Open(cfg Config) (*Database, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	db := NewDatabase(dynamodb.New(sess), cfg.Table)
	db.create = cfg.CreateTable
	return db, nil
}

func NewDatabase(service dynamodbiface.DynamoDBAPI, table string) *Database {
	return &Database{Service: service, TableName: table}
}

// SetUp checks the table exists, creating it when allowed.
func (d *Database) SetUp(ctx context.Context) error {
	_, err := d.Service.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.TableName),
	})
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if !errors.As(err, &aerr) || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException || !d.create {
		return fmt.Errorf("describe table %s: %w", d.TableName, err)
	}

	_, err = d.Service.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.TableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String(ColISBN), KeyType: aws.String(dynamodb.KeyTypeHash)},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String(ColISBN), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", d.TableName, err)
	}
	return d.Service.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.TableName),
	})
}

func (d *Database) UnitOfWorkManager() library.UnitOfWorkManager { return manager{d: d} }

func (d *Database) View() library.BookView { return view{d: d} }

// Close is a no-op; the SDK client holds no connections that need releasing.
func (d *Database) Close(context.Context) error { return nil }

type manager struct{ d *Database }

func (m manager) Start(context.Context) (library.UnitOfWork, error) {
	return library.NewStagedUnitOfWork(m.d.insert), nil
}

// insert writes books in one conditional TransactWriteItems call.
func (d *Database) insert(ctx context.Context, books []library.Book) error {
	if len(books) > maxTransactItems {
		return fmt.Errorf("dynamodb: %d books in one unit of work, limit is %d", len(books), maxTransactItems)
	}
	seen := make(map[string]struct{}, len(books))
	items := make([]*dynamodb.TransactWriteItem, 0, len(books))
	for _, b := range books {
		if _, dup := seen[b.ISBN]; dup {
			return fmt.Errorf("%w: %s", library.ErrBookAlreadyExists, b.ISBN)
		}
		seen[b.ISBN] = struct{}{}
		items = append(items, &dynamodb.TransactWriteItem{
			Put: &dynamodb.Put{
				TableName:           aws.String(d.TableName),
				ConditionExpression: aws.String("attribute_not_exists(#K)"),
				ExpressionAttributeNames: map[string]*string{
					"#K": aws.String(ColISBN),
				},
				Item: toItem(b),
			},
		})
	}

	_, err := d.Service.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("%w: %s", library.ErrBookAlreadyExists, strings.Join(isbns(books), ", "))
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

type view struct{ d *Database }

func (v view) All(ctx context.Context) ([]library.Book, error) {
	return v.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(v.d.TableName)})
}

func (v view) ByISBN(ctx context.Context, isbn string) (library.Book, error) {
	out, err := v.d.Service.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(v.d.TableName),
		Key:            map[string]*dynamodb.AttributeValue{ColISBN: {S: aws.String(isbn)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return library.Book{}, fmt.Errorf("get book %s: %w", isbn, err)
	}
	if len(out.Item) == 0 {
		return library.Book{}, library.ErrBookNotFound
	}
	return fromItem(out.Item), nil
}

func (v view) ByName(ctx context.Context, name string) ([]library.Book, error) {
	return v.scan(ctx, v.filtered(ColName, name))
}

func (v view) ByAuthor(ctx context.Context, author string) ([]library.Book, error) {
	return v.scan(ctx, v.filtered(ColAuthor, author))
}

func (v view) filtered(col, value string) *dynamodb.ScanInput {
	return &dynamodb.ScanInput{
		TableName:                 aws.String(v.d.TableName),
		FilterExpression:          aws.String("#F = :v"),
		ExpressionAttributeNames:  map[string]*string{"#F": aws.String(col)},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{":v": {S: aws.String(value)}},
		ConsistentRead:            aws.Bool(true),
	}
}

// scan collects every page and orders the result by ISBN.
func (v view) scan(ctx context.Context, in *dynamodb.ScanInput) ([]library.Book, error) {
	books := []library.Book{}
	err := v.d.Service.ScanPagesWithContext(ctx, in, func(page *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range page.Items {
			books = append(books, fromItem(item))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan books: %w", err)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ISBN < books[j].ISBN })
	return books, nil
}

func toItem(b library.Book) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		ColISBN:    {S: aws.String(b.ISBN)},
		ColName:    {S: aws.String(b.Name)},
		ColAuthor:  {S: aws.String(b.Author)},
		ColContent: {S: aws.String(b.Content)},
	}
}

func fromItem(item map[string]*dynamodb.AttributeValue) library.Book {
	str := func(col string) string {
		if av, ok := item[col]; ok && av != nil {
			return aws.StringValue(av.S)
		}
		return ""
	}
	return library.Book{ISBN: str(ColISBN), Name: str(ColName), Author: str(ColAuthor), Content: str(ColContent)}
}

// isConditionFailure recognises a transaction cancelled because a condition failed.
// The SDK only reports the per-item reasons inside the error message.
func isConditionFailure(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case dynamodb.ErrCodeConditionalCheckFailedException:
		return true
	case dynamodb.ErrCodeTransactionCanceledException:
		return strings.Contains(aerr.Message(), excConditionalCheckFailed)
	}
	return false
}

func isbns(books []library.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.ISBN
	}
	return out
}
