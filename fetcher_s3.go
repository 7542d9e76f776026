package httpvfs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/juju/ratelimit"

	"github.com/xet7/httpvfs/domain/model"
)

const s3Scheme = "s3://"

// S3API is the part of the S3 client used by S3Fetcher
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher fetches ranges of objects addressed as s3://bucket/key.
type S3Fetcher struct {
	client S3API
	limit  *ratelimit.Bucket
}

// NewS3Fetcher creates a fetcher from the default AWS configuration chain.
func NewS3Fetcher(ctx context.Context) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load aws config: %w", model.ErrConfig, err)
	}
	return NewS3FetcherWithClient(s3.NewFromConfig(cfg)), nil
}

// NewS3FetcherWithClient creates a fetcher using client.
func NewS3FetcherWithClient(client S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// WithDownloadLimit throttles object bodies to bytesPerSecond. Returns the fetcher for chaining.
func (f *S3Fetcher) WithDownloadLimit(bytesPerSecond int64) *S3Fetcher {
	f.limit = newDownloadBucket(bytesPerSecond)
	return f
}

// Fetch implements Fetcher
func (f *S3Fetcher) Fetch(ctx context.Context, r model.ChunkRange) ([]byte, error) {
	errCtx := model.NewErrorContext("fetch", "").WithURL(r.URL)

	bucket, key, err := parseS3URL(r.URL)
	if err != nil {
		return nil, errCtx.Error(err)
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if r.ToByte >= 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", r.FromByte, r.ToByte-1))
	}

	out, err := f.client.GetObject(ctx, input)
	if err != nil {
		return nil, errCtx.Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}
	defer out.Body.Close()

	body := io.Reader(out.Body)
	if f.limit != nil {
		body = &limitedReader{Reader: body, r: f.limit}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errCtx.Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}
	if r.ToByte < 0 {
		return data, nil
	}
	return checkLength(errCtx, data, r.Len())
}

// parseS3URL splits s3://bucket/key into bucket and key
func parseS3URL(url string) (bucket, key string, err error) {
	if !strings.HasPrefix(url, s3Scheme) {
		return "", "", fmt.Errorf("%w: not an s3 url: %s", model.ErrConfig, url)
	}
	bucket, key, found := strings.Cut(strings.TrimPrefix(url, s3Scheme), "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: s3 url must be s3://bucket/key: %s", model.ErrConfig, url)
	}
	return bucket, key, nil
}
