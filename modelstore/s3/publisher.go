package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jsobeck/AnniesLasso/modelstore"
)

// ErrConcurrentPublish is returned when two publishers race for the same
// version of a family. The losing caller should re-read the current version
// and retry.
var ErrConcurrentPublish = errors.New("concurrent publish detected")

// DDBClient is the subset of the DynamoDB API the publisher uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Publisher pairs S3 snapshot uploads with a DynamoDB version row per model
// family, giving the compare-and-swap "current model" pointer S3 lacks.
// Re-training produces a new snapshot; publishing it bumps the family
// version atomically, so concurrent publishers cannot both win.
//
// Table schema:
//   - Partition key: family (string)
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name cannon-models \
//	  --attribute-definitions AttributeName=family,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=family,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type Publisher struct {
	store     *Store
	ddb       DDBClient
	tableName string
	family    string
}

// PublishedModel is one committed version row of a family.
type PublishedModel struct {
	Family      string
	Version     uint64
	Snapshot    string
	PublishedAt time.Time
}

// NewPublisher creates a publisher for one model family.
func NewPublisher(store *Store, ddb DDBClient, tableName, family string) *Publisher {
	return &Publisher{
		store:     store,
		ddb:       ddb,
		tableName: tableName,
		family:    family,
	}
}

// Publish uploads the snapshot under name and commits it as the family's
// next version. Returns the committed version, or ErrConcurrentPublish if
// another publisher claimed it first (the uploaded snapshot is left in
// place; retrying reuses it via PublishExisting).
func (p *Publisher) Publish(ctx context.Context, name string, r io.Reader) (uint64, error) {
	if err := p.store.Put(ctx, name, r); err != nil {
		return 0, fmt.Errorf("upload snapshot: %w", err)
	}
	return p.PublishExisting(ctx, name)
}

// PublishExisting commits an already-uploaded snapshot as the family's next
// version.
func (p *Publisher) PublishExisting(ctx context.Context, name string) (uint64, error) {
	if _, err := p.store.Stat(ctx, name); err != nil {
		return 0, err
	}

	current, err := p.Current(ctx)
	if err != nil && !errors.Is(err, modelstore.ErrNotFound) {
		return 0, err
	}
	next := current.Version + 1

	_, err = p.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.tableName),
		Item: map[string]types.AttributeValue{
			"family":       &types.AttributeValueMemberS{Value: p.family},
			"version":      &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"snapshot":     &types.AttributeValueMemberS{Value: name},
			"published_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		// Only succeed if no row claimed this version yet.
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return 0, ErrConcurrentPublish
		}
		return 0, fmt.Errorf("commit version: %w", err)
	}
	return next, nil
}

// Current returns the family's latest committed version, or
// modelstore.ErrNotFound if nothing was published yet.
func (p *Publisher) Current(ctx context.Context) (PublishedModel, error) {
	resp, err := p.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(p.tableName),
		KeyConditionExpression: aws.String("family = :family"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":family": &types.AttributeValueMemberS{Value: p.family},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return PublishedModel{}, fmt.Errorf("query current version: %w", err)
	}
	if len(resp.Items) == 0 {
		return PublishedModel{}, modelstore.ErrNotFound
	}
	return parseVersionRow(p.family, resp.Items[0])
}

// OpenCurrent opens the snapshot behind the family's latest version.
func (p *Publisher) OpenCurrent(ctx context.Context) (io.ReadCloser, error) {
	current, err := p.Current(ctx)
	if err != nil {
		return nil, err
	}
	return p.store.Open(ctx, current.Snapshot)
}

func parseVersionRow(family string, item map[string]types.AttributeValue) (PublishedModel, error) {
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return PublishedModel{}, errors.New("version row missing version attribute")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return PublishedModel{}, fmt.Errorf("parse version: %w", err)
	}

	snapshotAttr, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return PublishedModel{}, errors.New("version row missing snapshot attribute")
	}

	row := PublishedModel{
		Family:   family,
		Version:  version,
		Snapshot: snapshotAttr.Value,
	}
	if at, ok := item["published_at"].(*types.AttributeValueMemberS); ok {
		if t, err := time.Parse(time.RFC3339Nano, at.Value); err == nil {
			row.PublishedAt = t
		}
	}
	return row, nil
}
