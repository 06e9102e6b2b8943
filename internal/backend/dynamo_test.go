package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

// pagedScanMock serves one page per Scan call and records the start keys it was given.
type pagedScanMock struct {
	pages     [][]map[string]types.AttributeValue
	startKeys []map[string]types.AttributeValue
	err       error
}

func (m *pagedScanMock) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.startKeys = append(m.startKeys, in.ExclusiveStartKey)
	i := len(m.startKeys) - 1
	out := &dyn.ScanOutput{Items: m.pages[i]}
	if i < len(m.pages)-1 {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "cursor"},
		}
	}
	return out, nil
}

func item(id, status string, total types.AttributeValue) map[string]types.AttributeValue {
	it := map[string]types.AttributeValue{
		"id":               &types.AttributeValueMemberS{Value: id},
		"order_id":         &types.AttributeValueMemberS{Value: "O-" + id},
		"status":           &types.AttributeValueMemberS{Value: status},
		"decision":         &types.AttributeValueMemberS{Value: "accepted"},
		"client_validated": &types.AttributeValueMemberBOOL{Value: false},
		"user_email":       &types.AttributeValueMemberS{Value: id + "@example.com"},
		"updated_at":       &types.AttributeValueMemberS{Value: "2026-03-01T10:00:00Z"},
	}
	if total != nil {
		it["total"] = total
	}
	return it
}

func TestDynamoLoader_Paginates(t *testing.T) {
	mock := &pagedScanMock{pages: [][]map[string]types.AttributeValue{
		{item("R1", "begin", &types.AttributeValueMemberN{Value: "19.99"})},
		{item("R2", "in_progress", &types.AttributeValueMemberS{Value: "5"}), item("R3", "begin", nil)},
	}}

	records, err := NewDynamoLoader(mock, "refund_payments").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Len(t, mock.startKeys, 2)
	require.NotNil(t, mock.startKeys[1])

	require.Equal(t, "R1", records[0].ID)
	require.Equal(t, "O-R1", records[0].OrderID)
	require.Equal(t, "19.99", records[0].Total.String())
	require.Equal(t, refunds.StatusInProgress, records[1].Status)
	require.Equal(t, "5", records[1].Total.String())
	require.True(t, records[2].Total.IsZero())
	require.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), records[0].UpdatedAt.UTC())
}

func TestDynamoLoader_BadAmountSkipsItem(t *testing.T) {
	mock := &pagedScanMock{pages: [][]map[string]types.AttributeValue{
		{item("R1", "begin", &types.AttributeValueMemberS{Value: "twelve"})},
		{item("R2", "begin", &types.AttributeValueMemberN{Value: "3.10"})},
	}}
	core, logs := observer.New(zap.WarnLevel)

	records, err := NewDynamoLoader(mock, "refund_payments").WithLogger(zap.New(core)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "R2", records[0].ID)
	require.Equal(t, "3.1", records[0].Total.String())

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "R1", entries[0].ContextMap()["id"])
	require.Contains(t, entries[0].ContextMap()["error"], "total")
}

func TestDynamoLoader_ScanError(t *testing.T) {
	mock := &pagedScanMock{err: &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no table"}}

	_, err := NewDynamoLoader(mock, "missing").Load(context.Background())

	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	require.Equal(t, "scan", ne.Op)
	require.Equal(t, "ResourceNotFoundException", ne.Code)
}
