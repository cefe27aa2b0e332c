package media

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver keeps a copy of inbound audio in S3. With no bucket configured
// every call is a no-op.
type Archiver struct {
	bucket string
	client S3API
	logger *logging.Logger
	now    func() time.Time
}

// NewArchiver creates an archiver for bucket.
func NewArchiver(client S3API, bucket string, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{bucket: bucket, client: client, logger: logger.Component("media_archive"), now: time.Now}
}

// Enabled returns true if archival is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.client != nil
}

// Archive uploads the file at path under media/v1/<user>/<yyyy>/<mm>/<dd>/.
// It returns the object key, or "" when archival is disabled.
func (a *Archiver) Archive(ctx context.Context, userID, path string) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("media: open for archive: %w", err)
	}
	defer f.Close()

	now := a.now().UTC()
	name := filepath.Base(path)
	key := fmt.Sprintf("media/v1/%s/%d/%02d/%02d/%s", userID, now.Year(), now.Month(), now.Day(), name)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("media: s3 put %s: %w", key, err)
	}
	a.logger.Info("archived media to S3", "user_id", userID, "s3_key", key)
	return key, nil
}
