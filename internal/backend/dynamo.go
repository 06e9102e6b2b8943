package backend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/aws"
	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

// DynamoLoader implements Loader by scanning the refund-payments table
// directly instead of going through the REST backend.
type DynamoLoader struct {
	client    aws.DynamoDBAPI
	tableName string
	log       *zap.Logger
}

// NewDynamoLoader returns a loader that scans tableName.
func NewDynamoLoader(client aws.DynamoDBAPI, tableName string) *DynamoLoader {
	return &DynamoLoader{client: client, tableName: tableName, log: zap.NewNop()}
}

// WithLogger sets the logger used to report skipped items.
func (l *DynamoLoader) WithLogger(log *zap.Logger) *DynamoLoader {
	l.log = logger.OrNop(log)
	return l
}

// Load scans every page of the table. Items that do not unmarshal are
// logged and skipped.
func (l *DynamoLoader) Load(ctx context.Context) ([]refunds.Record, error) {
	records := []refunds.Record{}
	p := dyn.NewScanPaginator(l.client, &dyn.ScanInput{TableName: &l.tableName})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, newNetworkError("scan", err)
		}
		for _, item := range page.Items {
			rec, err := unmarshalRecord(item)
			if err != nil {
				l.log.Warn("skipping undecodable refund payment item",
					zap.String("id", itemID(item)), zap.Error(err))
				continue
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func unmarshalRecord(item map[string]types.AttributeValue) (refunds.Record, error) {
	var rec refunds.Record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return rec, err
	}
	amounts := []struct {
		attr string
		dst  *decimal.Decimal
	}{
		{"subtotal", &rec.Subtotal},
		{"tax", &rec.Tax},
		{"delivery_fee", &rec.DeliveryFee},
		{"total", &rec.Total},
	}
	for _, a := range amounts {
		d, err := decimalAttr(item[a.attr])
		if err != nil {
			return rec, fmt.Errorf("%s: %w", a.attr, err)
		}
		*a.dst = d
	}
	return rec, nil
}

func itemID(item map[string]types.AttributeValue) string {
	if v, ok := item["id"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// decimalAttr reads a number stored either as N or as S. A missing attribute is zero.
func decimalAttr(av types.AttributeValue) (decimal.Decimal, error) {
	switch v := av.(type) {
	case nil:
		return decimal.Zero, nil
	case *types.AttributeValueMemberN:
		return decimal.NewFromString(v.Value)
	case *types.AttributeValueMemberS:
		return decimal.NewFromString(v.Value)
	case *types.AttributeValueMemberNULL:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported attribute type %T", av)
	}
}
