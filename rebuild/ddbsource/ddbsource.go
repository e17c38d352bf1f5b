// Package ddbsource reads rebuild records from a DynamoDB identity table.
//
// Table schema:
//   - Partition key: person_id (string) - the identity key
//
// Other attributes: cpf, name, origin_code, origin, filename,
// original_filename, file_path (strings), face_detected and active (booleans,
// a missing active counts as true) and slot_id (number, absent when the
// identity has no slot).
package ddbsource

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/rebuild"
)

// DefaultTable is the identity table name.
const DefaultTable = "facevault-persons"

// ErrUnknownIdentity is returned by SetSlot for a key missing from the table.
var ErrUnknownIdentity = errors.New("ddbsource: unknown identity")

// Client is the subset of the DynamoDB API the source needs.
type Client interface {
	dynamodb.ScanAPIClient
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Options configures a Source.
type Options struct {
	Table string

	// PageSize limits items per Scan request; zero uses the service default.
	PageSize int32
}

// Source is a rebuild.Source over a DynamoDB table.
type Source struct {
	client Client
	opts   Options
}

var _ rebuild.Source = (*Source)(nil)

// New creates a source over client.
func New(client Client, optFns ...func(o *Options)) *Source {
	opts := Options{Table: DefaultTable}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Source{client: client, opts: opts}
}

// Records implements rebuild.Source. Items are yielded in scan order.
func (s *Source) Records(ctx context.Context) iter.Seq2[rebuild.Record, error] {
	return func(yield func(rebuild.Record, error) bool) {
		input := &dynamodb.ScanInput{
			TableName:      aws.String(s.opts.Table),
			ConsistentRead: aws.Bool(true),
		}
		if s.opts.PageSize > 0 {
			input.Limit = aws.Int32(s.opts.PageSize)
		}

		p := dynamodb.NewScanPaginator(s.client, input)
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(rebuild.Record{}, fmt.Errorf("ddbsource: scan %s: %w", s.opts.Table, err))
				return
			}
			for _, item := range page.Items {
				rec, err := decode(item)
				if err != nil {
					yield(rebuild.Record{}, err)
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func decode(item map[string]types.AttributeValue) (rebuild.Record, error) {
	var r rebuild.Record

	key, ok := item["person_id"].(*types.AttributeValueMemberS)
	if !ok {
		return r, errors.New("ddbsource: item without person_id")
	}
	r.IdentityKey = key.Value
	r.TaxID = str(item, "cpf")
	r.DisplayName = str(item, "name")
	r.OriginCode = str(item, "origin_code")
	r.Origin = str(item, "origin")
	r.Filename = str(item, "filename")
	r.OriginalFilename = str(item, "original_filename")
	r.ArtifactPath = str(item, "file_path")

	if v, ok := item["face_detected"].(*types.AttributeValueMemberBOOL); ok {
		r.HasDetectedFace = v.Value
	}
	if v, ok := item["active"].(*types.AttributeValueMemberBOOL); ok {
		r.Inactive = !v.Value
	}
	return r, nil
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// SetSlot implements rebuild.Source.
func (s *Source) SetSlot(ctx context.Context, identityKey string, slot *core.SlotID) error {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.opts.Table),
		Key: map[string]types.AttributeValue{
			"person_id": &types.AttributeValueMemberS{Value: identityKey},
		},
		ConditionExpression: aws.String("attribute_exists(person_id)"),
	}
	if slot == nil {
		input.UpdateExpression = aws.String("REMOVE slot_id")
	} else {
		input.UpdateExpression = aws.String("SET slot_id = :s")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(*slot), 10)},
		}
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: %s", ErrUnknownIdentity, identityKey)
		}
		return fmt.Errorf("ddbsource: update %s: %w", identityKey, err)
	}
	return nil
}
