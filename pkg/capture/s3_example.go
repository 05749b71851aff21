//go:build s3archive
// +build s3archive

// This file provides an example S3-backed archive store. It is excluded
// from regular builds because most gateways keep captures on local disk;
// build with -tags s3archive to ship them to a bucket instead.

package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps captures as objects under a key prefix.
//
// Example usage:
//
//	awsCfg, _ := config.LoadDefaultConfig(context.Background())
//	store := capture.NewS3Store(s3.NewFromConfig(awsCfg), "my-bucket", "captures/")
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates an S3 capture store.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// s3CaptureWriter buffers one capture and uploads it on Close. Captures
// stay small (frames are compact and sessions rotate them), so buffering
// beats a multipart upload here.
type s3CaptureWriter struct {
	store *S3Store
	key   string
	buf   bytes.Buffer
}

func (w *s3CaptureWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3CaptureWriter) Close() error {
	_, err := w.store.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(w.store.bucket),
		Key:         aws.String(w.key),
		Body:        bytes.NewReader(w.buf.Bytes()),
		ContentType: aws.String("application/cbor-seq"),
		Metadata: map[string]string{
			"capture-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("capture: s3 upload %s: %w", w.key, err)
	}
	return nil
}

// Create opens a new capture that uploads to S3 when closed.
func (s *S3Store) Create(name string) (io.WriteCloser, string, error) {
	full := fmt.Sprintf("%s-%s%s",
		sanitize(name), time.Now().UTC().Format("20060102-150405"), captureExt)
	return &s3CaptureWriter{store: s, key: s.prefix + full}, full, nil
}

// Open downloads a capture by name.
func (s *S3Store) Open(name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + name),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return out.Body, nil
}

// List returns the capture names under the prefix, oldest first.
func (s *S3Store) List() ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := strings.TrimPrefix(*obj.Key, s.prefix)
			if strings.HasSuffix(name, captureExt) {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
