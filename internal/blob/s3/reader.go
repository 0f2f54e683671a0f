package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// Reader implements domain.ReceiptReader over the receipts bucket.
type Reader struct {
	client *s3.Client
	bucket string
}

// NewReader creates a Reader for the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{client: c.s3, bucket: c.bucket}
}

// ListReceipts returns the receipts of kind stored for the UTC day of day,
// newest first. Objects under the day prefix that are not JSON documents are
// skipped.
func (r *Reader) ListReceipts(ctx context.Context, kind string, day time.Time) ([]domain.Receipt, error) {
	prefix := domain.ReceiptDir(kind, day)
	receipts := []domain.Receipt{}

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s receipts: %w", kind, err)
		}
		for _, obj := range page.Contents {
			if rc, ok := receiptFromObject(kind, day, obj); ok {
				receipts = append(receipts, rc)
			}
		}
	}
	sortNewestFirst(receipts)
	return receipts, nil
}

// OpenReceipt returns the body of one receipt, or domain.ErrNotFound. The
// caller closes the reader.
func (r *Reader) OpenReceipt(ctx context.Context, kind string, day time.Time, id string) (io.ReadCloser, error) {
	p := domain.ReceiptPath(kind, day, id)
	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(p),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: receipt %s: %w", p, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: receipt %s: %w", p, err)
	}
	return output.Body, nil
}

func receiptFromObject(kind string, day time.Time, obj types.Object) (domain.Receipt, bool) {
	p := aws.ToString(obj.Key)
	name := path.Base(p)
	if !strings.HasSuffix(name, ".json") || path.Dir(p)+"/" != domain.ReceiptDir(kind, day) {
		return domain.Receipt{}, false
	}
	rc := domain.Receipt{
		ID:   strings.TrimSuffix(name, ".json"),
		Kind: kind,
		Day:  day.UTC().Format(time.DateOnly),
		Path: p,
		Size: aws.ToInt64(obj.Size),
	}
	if obj.LastModified != nil {
		rc.LastModified = *obj.LastModified
	}
	return rc, true
}

func sortNewestFirst(receipts []domain.Receipt) {
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].LastModified.After(receipts[j].LastModified)
	})
}

// isNotFound matches NoSuchKey, NotFound, and bare 404 responses from
// S3-compatible providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == http.StatusNotFound
}

var _ domain.ReceiptReader = (*Reader)(nil)
