package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	bucket, key, contentType string
	body                     []byte
}

type recordingPutter struct {
	calls []putCall
	err   error
}

func (p *recordingPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	p.calls = append(p.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "earthquakes.csv")
	require.NoError(t, WriteCSVFile(path, testRows(3)))
	return path
}

func TestUploader_Plain(t *testing.T) {
	path := writeExport(t)
	want, err := os.ReadFile(path)
	require.NoError(t, err)

	putter := &recordingPutter{}
	u := &Uploader{client: putter, bucket: "quakes"}

	key, err := u.Upload(context.Background(), path, "exports/latest.csv", false)
	require.NoError(t, err)
	assert.Equal(t, "exports/latest.csv", key)

	require.Len(t, putter.calls, 1)
	call := putter.calls[0]
	assert.Equal(t, "quakes", call.bucket)
	assert.Equal(t, "text/csv; charset=utf-8", call.contentType)
	assert.Equal(t, want, call.body)
}

func TestUploader_Snappy(t *testing.T) {
	path := writeExport(t)
	want, err := os.ReadFile(path)
	require.NoError(t, err)

	putter := &recordingPutter{}
	u := &Uploader{client: putter, bucket: "quakes"}

	key, err := u.Upload(context.Background(), path, "exports/latest.csv", true)
	require.NoError(t, err)
	assert.Equal(t, "exports/latest.csv"+SnappySuffix, key)

	require.Len(t, putter.calls, 1)
	assert.Equal(t, "application/x-snappy", putter.calls[0].contentType)
	decoded, err := snappy.Decode(nil, putter.calls[0].body)
	require.NoError(t, err)
	assert.Equal(t, want, decoded)
}

func TestUploader_Errors(t *testing.T) {
	u := &Uploader{client: &recordingPutter{err: errors.New("access denied")}, bucket: "quakes"}

	_, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), "k", false)
	require.Error(t, err)

	_, err = u.Upload(context.Background(), writeExport(t), "k.csv", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://quakes/k.csv")
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewUploader_RequiresBucket(t *testing.T) {
	_, err := NewUploader(context.Background(), S3Config{})
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "text/markdown; charset=utf-8", contentTypeFor("report.md"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("blob"))
}
