package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/dev-tams/dbbackup/internal/storage/object"
	"github.com/dev-tams/dbbackup/internal/storage/prunable"
)

type Storage struct {
	name   string
	bucket string
	prefix string
	client *s3.Client
}

type Options struct {
	Name     string
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string
	// UsePathStyle is needed by most S3 compatible servers (MinIO, Ceph).
	UsePathStyle bool
	// AccessKey and SecretKey are optional, the default AWS credential
	// chain is used without them.
	AccessKey string
	SecretKey string
}

func New(ctx context.Context, opt Options) (*Storage, error) {
	if opt.Bucket == "" || opt.Region == "" {
		return nil, fmt.Errorf("s3: bucket and region are required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opt.Region),
	}
	if opt.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
		}
		o.UsePathStyle = opt.UsePathStyle
	})

	return NewWithClient(opt.Name, opt.Bucket, opt.Prefix, client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(name, bucket, prefix string, client *s3.Client) *Storage {
	return &Storage{
		name:   name,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		client: client,
	}
}

func (s *Storage) Name() string {
	return s.name
}

func (s *Storage) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	// S3 uses forward slashes
	return path.Join(s.prefix, key)
}

func (s *Storage) relKey(fullKey string) string {
	if s.prefix == "" {
		return fullKey
	}
	return strings.TrimPrefix(fullKey, s.prefix+"/")
}

func (s *Storage) location(fullKey string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, fullKey)
}

// OpenWriter spools the object to a local temp file and uploads it on
// Close. PutObject needs a seekable body to sign the payload over plain
// HTTP endpoints.
func (s *Storage) OpenWriter(ctx context.Context, key string) (object.Writer, error) {
	spool, err := os.CreateTemp("", "dbbackup-s3-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	fullKey := s.fullKey(key)
	return &uploadWriter{
		ctx:     ctx,
		storage: s,
		key:     fullKey,
		loc:     s.location(fullKey),
		spool:   spool,
	}, nil
}

func (s *Storage) OpenReader(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return nil, apiError("s3 getobject failed", err)
	}
	return out.Body, nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]prunable.ObjectInfo, error) {
	listPrefix := s.fullKey(prefix)
	if listPrefix != "" && !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}

	var out []prunable.ObjectInfo
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, apiError("s3 listobjects failed", err)
		}
		for _, obj := range page.Contents {
			info := prunable.ObjectInfo{Key: s.relKey(aws.ToString(obj.Key))}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return apiError("s3 deleteobject failed", err)
	}
	return nil
}

func apiError(msg string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s: %s", msg, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%s: %w", msg, err)
}

type uploadWriter struct {
	ctx     context.Context
	storage *Storage
	key     string
	loc     string
	spool   *os.File
	closed  bool
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.spool.Write(p)
}

// Close uploads the spooled object, then the CLI reports success/failure.
func (w *uploadWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.discard()

	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool file: %w", err)
	}

	_, err := w.storage.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.storage.bucket),
		Key:    aws.String(w.key),
		Body:   w.spool,
	})
	if err != nil {
		return apiError("s3 putobject failed", err)
	}
	return nil
}

func (w *uploadWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.discard()
	return nil
}

func (w *uploadWriter) discard() {
	_ = w.spool.Close()
	_ = os.Remove(w.spool.Name())
}

func (w *uploadWriter) Location() string { return w.loc }
