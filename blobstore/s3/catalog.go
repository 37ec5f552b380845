package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the interface for the DynamoDB operations the catalog
// uses. Satisfied by *dynamodb.Client.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentModification is returned when another writer committed
// the same catalog version first.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// ExportRecord is one committed export in the catalog.
type ExportRecord struct {
	ScanID      string
	Version     uint64
	ObjectKey   string
	VertexCount int
	FaceCount   int
	CreatedAt   time.Time
}

// ExportCatalog tracks the latest archived export per scan using
// DynamoDB conditional writes. S3 has no compare-and-swap, so the
// "which object is the current export of scan X" pointer lives here;
// two uploaders racing on the same scan cannot both win a version.
//
// Table schema:
//   - Partition key: scan_id (string)
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name meshgo-exports \
//	  --attribute-definitions AttributeName=scan_id,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=scan_id,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type ExportCatalog struct {
	client    DDBClient
	tableName string
}

// NewExportCatalog creates a catalog over the given DynamoDB table.
func NewExportCatalog(client DDBClient, tableName string) *ExportCatalog {
	return &ExportCatalog{
		client:    client,
		tableName: tableName,
	}
}

// Latest returns the most recently committed export for the scan.
// ok is false when the scan has no committed export.
func (c *ExportCatalog) Latest(ctx context.Context, scanID string) (ExportRecord, bool, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("scan_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: scanID},
		},
		ScanIndexForward: aws.Bool(false), // Descending, newest version first
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return ExportRecord{}, false, fmt.Errorf("failed to query catalog: %w", err)
	}

	if len(resp.Items) == 0 {
		return ExportRecord{}, false, nil
	}

	rec, err := parseRecord(scanID, resp.Items[0])
	if err != nil {
		return ExportRecord{}, false, err
	}
	return rec, true, nil
}

// Commit records a new export for the scan at version latest+1. The
// conditional put fails with ErrConcurrentModification when another
// writer claimed that version first; the caller may retry.
func (c *ExportCatalog) Commit(ctx context.Context, scanID, objectKey string, vertices, faces int) (uint64, error) {
	latest, ok, err := c.Latest(ctx, scanID)
	if err != nil {
		return 0, err
	}

	newVersion := uint64(1)
	if ok {
		newVersion = latest.Version + 1
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"scan_id":    &types.AttributeValueMemberS{Value: scanID},
			"version":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newVersion)},
			"object_key": &types.AttributeValueMemberS{Value: objectKey},
			"vertices":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", vertices)},
			"faces":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", faces)},
			"created_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentModification
		}
		return 0, fmt.Errorf("failed to commit export version: %w", err)
	}

	return newVersion, nil
}

func parseRecord(scanID string, item map[string]types.AttributeValue) (ExportRecord, error) {
	rec := ExportRecord{ScanID: scanID}

	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return rec, errors.New("invalid version attribute in catalog item")
	}
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &rec.Version); err != nil {
		return rec, fmt.Errorf("failed to parse version: %w", err)
	}

	keyAttr, ok := item["object_key"].(*types.AttributeValueMemberS)
	if !ok {
		return rec, errors.New("invalid object_key attribute in catalog item")
	}
	rec.ObjectKey = keyAttr.Value

	if v, ok := item["vertices"].(*types.AttributeValueMemberN); ok {
		_, _ = fmt.Sscanf(v.Value, "%d", &rec.VertexCount)
	}
	if f, ok := item["faces"].(*types.AttributeValueMemberN); ok {
		_, _ = fmt.Sscanf(f.Value, "%d", &rec.FaceCount)
	}
	if ts, ok := item["created_at"].(*types.AttributeValueMemberS); ok {
		rec.CreatedAt, _ = time.Parse(time.RFC3339, ts.Value)
	}

	return rec, nil
}
