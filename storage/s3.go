package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3-compatible storage backend.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, for S3-compatible services
	// (MinIO, etc.).
	Endpoint string
	// AccessKeyID and SecretAccessKey authenticate explicitly. Prefer
	// IAM roles, instance profiles, or the AWS_ACCESS_KEY_ID /
	// AWS_SECRET_ACCESS_KEY environment variables; never commit
	// credentials to source control.
	AccessKeyID     string
	SecretAccessKey string
	// Prefix is prepended to every object name.
	Prefix string
	// UsePathStyle selects path-style addressing.
	UsePathStyle bool
}

type s3Storage struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3Storage stores objects in an S3 or S3-compatible bucket. A
// stream is buffered in memory and uploaded as a single object on
// Finish, so an aborted run never leaves a partial object behind.
func NewS3Storage(ctx context.Context, cfg S3Config) (Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &s3Storage{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
	}, nil
}

type s3Writer struct {
	ctx     context.Context
	storage *s3Storage
	key     string
	buf     bytes.Buffer
	done    bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, errObjectIsClosed
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Finish() error {
	if w.done {
		return errObjectIsClosed
	}
	w.done = true

	_, err := w.storage.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.storage.cfg.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("S3 put object failed: %w", err)
	}
	return nil
}

func (w *s3Writer) Abort() {
	// Nothing was uploaded yet; dropping the buffer discards the object.
	w.done = true
	w.buf.Reset()
}

type s3Reader struct {
	io.ReadCloser
	size int64
}

func (r s3Reader) Size() int64 {
	return r.size
}

func (s *s3Storage) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("S3 head object failed: %w", err)
	}
	return true, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

func (s *s3Storage) Create(ctx context.Context, name string) (Writable, error) {
	key := s.cfg.Prefix + name
	ok, err := s.exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}

	return &s3Writer{
		ctx:     ctx,
		storage: s,
		key:     key,
	}, nil
}

func (s *s3Storage) Open(ctx context.Context, name string) (Readable, error) {
	key := s.cfg.Prefix + name
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("S3 get object failed: %w", err)
	}
	return s3Reader{
		ReadCloser: resp.Body,
		size:       aws.ToInt64(resp.ContentLength),
	}, nil
}

func (s *s3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.cfg.Prefix + prefix

	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 list objects failed: %w", err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), s.cfg.Prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *s3Storage) Remove(ctx context.Context, name string) error {
	key := s.cfg.Prefix + name
	ok, err := s.exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("S3 delete object failed: %w", err)
	}
	return nil
}

func (s *s3Storage) Close() error {
	return nil
}

var _ Storage = (*s3Storage)(nil)
