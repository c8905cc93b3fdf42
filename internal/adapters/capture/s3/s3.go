// Package s3 is a capture source over an S3 bucket prefix (AWS or MinIO)
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"sftpetl/internal/adapters/capture"
	"sftpetl/internal/core/layers"
	perr "sftpetl/internal/platform/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config locates the drop bucket. Endpoint switches to path-style addressing for MinIO
type Config struct {
	Bucket    string `validate:"required"`
	Prefix    string
	Glob      string
	Region    string `validate:"required"`
	Endpoint  string `validate:"omitempty,url"`
	AccessKey string
	SecretKey string
}

// API is the subset of *s3.Client the source uses
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source lists and reads objects under Bucket/Prefix; FileRef paths are relative to Prefix
type Source struct {
	api    API
	bucket string
	prefix string
	glob   string
}

// New builds an S3 client from cfg using the default credential chain, or static keys when set
func New(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.Bucket == "" {
		return nil, perr.Configf("s3: empty bucket")
	}
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeConfiguration, "s3: loading aws config")
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg)
}

// NewWithAPI wraps an existing client; tests pass a fake
func NewWithAPI(api API, cfg Config) (*Source, error) {
	if cfg.Glob != "" {
		if _, err := path.Match(cfg.Glob, ""); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeConfiguration, "s3: bad glob %q", cfg.Glob)
		}
	}
	prefix := strings.TrimPrefix(cfg.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Source{api: api, bucket: cfg.Bucket, prefix: prefix, glob: cfg.Glob}, nil
}

// Name implements capture.Source
func (s *Source) Name() string { return "s3" }

// List pages through ListObjectsV2 under the prefix
func (s *Source) List(ctx context.Context) ([]capture.FileRef, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	var out []capture.FileRef
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, s.mapErr(err, s.prefix, "s3.list")
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, s.prefix)
			// folder placeholders
			if rel == "" || strings.HasSuffix(rel, "/") || !s.matches(rel) {
				continue
			}
			out = append(out, capture.FileRef{
				Path:             rel,
				ModificationTime: aws.ToTime(obj.LastModified).UTC(),
				Length:           aws.ToInt64(obj.Size),
			})
		}
	}
	capture.SortRefs(out)
	return out, nil
}

// Stat implements capture.Source with HeadObject
func (s *Source) Stat(ctx context.Context, rel string) (capture.FileRef, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + rel),
	})
	if err != nil {
		return capture.FileRef{}, s.mapErr(err, rel, "s3.stat")
	}
	return capture.FileRef{
		Path:             rel,
		ModificationTime: aws.ToTime(out.LastModified).UTC(),
		Length:           aws.ToInt64(out.ContentLength),
	}, nil
}

// Read implements capture.Source with GetObject, reading the body fully
func (s *Source) Read(ctx context.Context, ref capture.FileRef) (layers.RawFileRecord, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + ref.Path),
	})
	if err != nil {
		return layers.RawFileRecord{}, s.mapErr(err, ref.Path, "s3.read")
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		// a cut stream is worth another attempt
		return layers.RawFileRecord{}, perr.WithOp(perr.Wrapf(err, perr.ErrorCodeUnavailable, "capture %s: read body", ref.Path), "s3.read")
	}
	if ref.ModificationTime.IsZero() && out.LastModified != nil {
		ref.ModificationTime = *out.LastModified
	}
	return capture.Record(ref, b), nil
}

func (s *Source) matches(rel string) bool {
	if s.glob == "" {
		return true
	}
	ok, _ := path.Match(s.glob, path.Base(rel))
	return ok
}

// mapErr classifies SDK errors: missing keys are NotFound, throttling and
// timeouts are Unavailable (retryable), anything else is a capture failure
func (s *Source) mapErr(err error, rel, op string) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var nb *types.NoSuchBucket
	switch {
	case errors.As(err, &nsk), errors.As(err, &nf):
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeNotFound, "capture %s: not found", rel), op)
	case errors.As(err, &nb):
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeConfiguration, "capture: bucket %s does not exist", s.bucket), op)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), isThrottle(err):
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeUnavailable, "capture %s", rel), op)
	}
	return capture.Errf(err, rel, op)
}

type apiError interface {
	ErrorCode() string
}

func isThrottle(err error) bool {
	var ae apiError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout", "ServiceUnavailable", "InternalError":
		return true
	}
	return false
}

// String renders the source location for logs
func (s *Source) String() string { return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix) }

var (
	_ capture.Source = (*Source)(nil)
	_ API            = (*s3.Client)(nil)
)
