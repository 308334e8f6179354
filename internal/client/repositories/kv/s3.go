package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectAPI is the part of *s3.Client the repository uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config describes the bucket. Endpoint is set for S3 compatible stores
// such as MinIO, which also need path-style addressing.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// maxUpdateAttempts bounds the optimistic retry loop of Update.
const maxUpdateAttempts = 5

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) ObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Repository keeps every key as one JSON object "<prefix><key>.json".
// Update uses conditional writes (If-Match / If-None-Match) so concurrent
// writers retry instead of overwriting each other.
type S3Repository struct {
	api    ObjectAPI
	bucket string
	prefix string
}

func NewS3Repository(api ObjectAPI, bucket, prefix string) *S3Repository {
	return &S3Repository{api: api, bucket: bucket, prefix: prefix}
}

// NewS3RepositoryFromConfig builds the AWS client from static credentials
// when given, falling back to the default credential chain otherwise.
func NewS3RepositoryFromConfig(ctx context.Context, c S3Config) (*S3Repository, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Repository(client, c.Bucket, c.Prefix), nil
}

func (r *S3Repository) objectKey(key string) string {
	return r.prefix + key + ".json"
}

func (r *S3Repository) Get(ctx context.Context, key string) (string, bool, error) {
	value, _, ok, err := r.get(ctx, key)
	return value, ok, err
}

func (r *S3Repository) Set(ctx context.Context, key string, value string) error {
	if err := r.put(ctx, key, value, nil); err != nil {
		return fmt.Errorf("failed to set kv[%s]: %w", key, err)
	}
	return nil
}

func (r *S3Repository) Update(ctx context.Context, key string, fn UpdateFunc) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, etag, ok, err := r.get(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to update kv[%s]: %w", key, err)
		}

		next, err := fn(current, ok)
		if err != nil {
			return fmt.Errorf("failed to update kv[%s]: %w", key, err)
		}

		cond := func(in *s3.PutObjectInput) {
			if ok && etag != "" {
				in.IfMatch = aws.String(etag)
			} else if !ok {
				in.IfNoneMatch = aws.String("*")
			}
		}

		err = r.put(ctx, key, next, cond)
		if err == nil {
			return nil
		}
		if !isPreconditionFailed(err) {
			return fmt.Errorf("failed to update kv[%s]: %w", key, err)
		}
	}
	return fmt.Errorf("failed to update kv[%s]: concurrent writers, gave up after %d attempts", key, maxUpdateAttempts)
}

func (r *S3Repository) Keys(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(r.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix + prefix),
	})

	keys := make([]string, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list kv keys: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), r.prefix)
			if k, ok := strings.CutSuffix(name, ".json"); ok {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (r *S3Repository) get(ctx context.Context, key string) (value, etag string, ok bool, err error) {
	out, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("failed to get kv[%s]: %w", key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to read kv[%s]: %w", key, err)
	}
	return string(b), aws.ToString(out.ETag), true, nil
}

func (r *S3Repository) put(ctx context.Context, key, value string, cond func(*s3.PutObjectInput)) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.objectKey(key)),
		Body:        strings.NewReader(value),
		ContentType: aws.String("application/json"),
	}
	if cond != nil {
		cond(in)
	}
	_, err := r.api.PutObject(ctx, in)
	return err
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || code == "ConditionalRequestConflict"
	}
	return false
}
