package s3blob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("op: %w", &types.NoSuchKey{})))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("access denied")))
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "receipts"})
	require.Error(t, err)
}

func TestS3Options(t *testing.T) {
	assert.Len(t, s3Options(ClientConfig{}), 0)
	assert.Len(t, s3Options(ClientConfig{Endpoint: "minio:9000", ForcePathStyle: true}), 2)
}

func TestReceiptFromObject(t *testing.T) {
	day := time.Date(2026, 1, 2, 23, 30, 0, 0, time.UTC)
	modified := day.Add(time.Minute)

	rc, ok := receiptFromObject(domain.ReceiptOrders, day, types.Object{
		Key:          aws.String("receipts/orders/2026-01-02/0xabc.json"),
		Size:         aws.Int64(120),
		LastModified: &modified,
	})
	require.True(t, ok)
	assert.Equal(t, "0xabc", rc.ID)
	assert.Equal(t, "2026-01-02", rc.Day)
	assert.Equal(t, int64(120), rc.Size)
	assert.Equal(t, modified, rc.LastModified)

	_, ok = receiptFromObject(domain.ReceiptOrders, day, types.Object{Key: aws.String("receipts/orders/2026-01-02/notes.txt")})
	assert.False(t, ok)
	_, ok = receiptFromObject(domain.ReceiptOrders, day, types.Object{Key: aws.String("receipts/orders/2026-01-02/old/0xabc.json")})
	assert.False(t, ok)
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		{ID: "a", LastModified: base},
		{ID: "c", LastModified: base.Add(2 * time.Hour)},
		{ID: "b", LastModified: base.Add(time.Hour)},
	}
	sortNewestFirst(receipts)
	assert.Equal(t, "c", receipts[0].ID)
	assert.Equal(t, "b", receipts[1].ID)
	assert.Equal(t, "a", receipts[2].ID)
}
