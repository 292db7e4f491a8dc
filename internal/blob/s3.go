// Package blob stores uploaded files such as identification documents.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

var ErrEmptyFile = errors.New("file is empty")

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Stored identifies an uploaded object.
type Stored struct {
	ID  string
	URL string
}

type Store interface {
	Put(ctx context.Context, f File) (Stored, error)
	Delete(ctx context.Context, id string) error
}

// S3API is the part of *s3.Client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Store struct {
	client S3API
	bucket string
	prefix string
	newID  func() string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		newID:  uuid.NewString,
	}
}

// Put uploads f under a fresh id. The object stays private; URL is the
// s3:// location for internal consumers.
func (s *S3Store) Put(ctx context.Context, f File) (Stored, error) {
	if len(f.Data) == 0 {
		return Stored{}, ErrEmptyFile
	}

	id := s.newID()
	key := s.key(id)
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(f.Data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	}
	if f.Name != "" {
		in.Metadata = map[string]string{"original-name": url.PathEscape(f.Name)}
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return Stored{}, fmt.Errorf("put object %s: %w", key, err)
	}

	return Stored{
		ID:  id,
		URL: fmt.Sprintf("s3://%s/%s", s.bucket, key),
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	key := s.key(id)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) key(id string) string {
	return path.Join(s.prefix, id)
}
