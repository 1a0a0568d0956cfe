// Package export ships rendered report artifacts to an S3 bucket so CI
// runs can publish their coverage without keeping the local store.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/imabhichow/duvet/pkg/logging"
)

// s3API is the slice of the S3 client the uploader needs. Tests swap in
// a fake.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the destination bucket and how to reach it.
type Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the S3 endpoint, for MinIO and compatible
	// stores. Implies path-style addressing.
	Endpoint string

	// Static credentials. Empty means the SDK's default chain (env,
	// shared config, instance role).
	AccessKey string
	SecretKey string

	Logger logging.Logger
}

// Uploader puts report artifacts into one bucket under a key prefix.
type Uploader struct {
	client s3API
	bucket string
	prefix string
	log    logging.Logger
}

// New builds an uploader with a real S3 client.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("export: bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("export: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient builds an uploader around an existing client.
func NewWithClient(client s3API, cfg Config) *Uploader {
	log := cfg.Logger
	if log == nil {
		log = logging.DefaultLogger().With(logging.Component("export"))
	}
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}
}

// Put uploads one artifact under the configured prefix.
func (u *Uploader) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	started := time.Now()
	full := path.Join(u.prefix, key)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(full),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("export: failed to put %s: %w", full, err)
	}

	u.log.Info("artifact uploaded",
		logging.String("bucket", u.bucket),
		logging.String("key", full),
		logging.Latency(time.Since(started)))
	return nil
}

// PutDir uploads every file under dir, keyed by its dir-relative path.
// Used to ship a rendered HTML report tree.
func (u *Uploader) PutDir(ctx context.Context, dir string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := u.Put(ctx, filepath.ToSlash(rel), contentTypeFor(rel), f); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	return uploaded, err
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
