package purchasing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DocumentStore keeps rendered purchase order documents.
type DocumentStore interface {
	// Put stores data under key and returns the path recorded on the PO.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
}

// LocalStore writes documents below Dir.
type LocalStore struct {
	Dir string
}

func (l *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(key)
	if err := os.WriteFile(filepath.Join(l.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write po document: %w", err)
	}
	return name, nil
}

func (l *LocalStore) Get(_ context.Context, path string) ([]byte, error) {
	name := filepath.Base(path)
	if name != path || name == "." || name == ".." {
		return nil, errors.New("invalid document path")
	}
	return os.ReadFile(filepath.Join(l.Dir, name))
}

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps documents in an S3 bucket. Paths look like s3://bucket/key.
type S3Store struct {
	Client S3API
	Bucket string
	Prefix string
}

func NewS3Store(cfg aws.Config, bucket, prefix string) *S3Store {
	return &S3Store{Client: s3.NewFromConfig(cfg), Bucket: bucket, Prefix: prefix}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	full := s.Prefix + key
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", full, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.Bucket, full), nil
}

func (s *S3Store) Get(ctx context.Context, path string) ([]byte, error) {
	key, ok := strings.CutPrefix(path, "s3://"+s.Bucket+"/")
	if !ok {
		return nil, fmt.Errorf("document %q is not in bucket %s", path, s.Bucket)
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.Bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
