package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
)

// SnappySuffix is appended to object keys whose body is snappy-compressed.
const SnappySuffix = ".sz"

// ErrNoBucket is returned when an upload is attempted without a bucket.
var ErrNoBucket = errors.New("export: no bucket configured")

// objectPutter is the subset of *s3.Client the uploader uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config selects the bucket and endpoint for uploads. Endpoint and
// UsePathStyle are only needed for S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Uploader copies finished export files to an S3 bucket.
type Uploader struct {
	client objectPutter
	bucket string
}

// NewUploader loads AWS credentials from the default chain.
func NewUploader(ctx context.Context, cfg S3Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Uploader{client: client, bucket: cfg.Bucket}, nil
}

// Upload puts the file at localPath under key and returns the object key
// actually written. With compress set the body is snappy-encoded and the key
// gets SnappySuffix.
func (u *Uploader) Upload(ctx context.Context, localPath, key string, compress bool) (string, error) {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}

	contentType := contentTypeFor(key)
	if compress {
		body = snappy.Encode(nil, body)
		contentType = "application/x-snappy"
		if !strings.HasSuffix(key, SnappySuffix) {
			key += SnappySuffix
		}
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".csv"):
		return "text/csv; charset=utf-8"
	case strings.HasSuffix(key, ".md"):
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
