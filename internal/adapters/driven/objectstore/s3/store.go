// Package s3 provides the object store adapter backed by Amazon S3.
package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ObjectStore = (*Store)(nil)

// api is the S3 surface the store uses, narrowed for testability.
type api interface {
	awss3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Store is a flat blob store over one S3 bucket.
type Store struct {
	client api
	bucket string
}

// New creates an S3 object store for the given bucket.
func New(client *awss3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// List enumerates keys under a prefix, one page per callback. fn
// returning false stops pagination early.
func (s *Store) List(ctx context.Context, prefix string, fn func(page []driven.ObjectInfo) bool) error {
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects under %s: %w", prefix, err)
		}

		infos := make([]driven.ObjectInfo, 0, len(page.Contents))
		for _, obj := range page.Contents {
			info := driven.ObjectInfo{Key: aws.ToString(obj.Key)}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.Unix()
			}
			infos = append(infos, info)
		}
		if !fn(infos) {
			return nil
		}
	}
	return nil
}

// Head reads per-key user metadata without fetching the body. S3
// lower-cases user metadata keys, matching the metadata contract.
func (s *Store) Head(ctx context.Context, key string) (driven.ObjectMetadata, error) {
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}
	return driven.ObjectMetadata(out.Metadata), nil
}

// Put writes a body with metadata and content type.
func (s *Store) Put(ctx context.Context, key string, body []byte, meta driven.ObjectMetadata, contentType string) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		Metadata:    meta,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. S3 treats deleting an absent key as success.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}
