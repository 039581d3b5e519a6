// Package fetch pulls remote inputs (s3:// objects and http(s) URLs) into a
// request's temp scope so they go through the same pipeline as uploads.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/local/pdforganizer/internal/tempstore"
)

var (
	// ErrTooLarge is returned when the remote object exceeds the size limit.
	ErrTooLarge = errors.New("remote file too large")
	// ErrUnsupportedScheme is returned for references other than s3, http and https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// S3Client is the part of the S3 API the fetcher uses.
type S3Client interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Options configures a Fetcher.
type Options struct {
	MaxBytes   int64
	HTTPClient *http.Client
	// S3 is built from the default AWS config chain on first use when nil.
	S3 S3Client
}

// Fetcher downloads remote references.
type Fetcher struct {
	maxBytes int64
	http     *http.Client

	s3Once sync.Once
	s3     S3Client
	s3Err  error
}

// New returns a Fetcher.
func New(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	f := &Fetcher{maxBytes: opts.MaxBytes, http: client, s3: opts.S3}
	if opts.S3 != nil {
		f.s3Once.Do(func() {})
	}
	return f
}

// Fetch downloads ref into a new file owned by scope.
func (f *Fetcher) Fetch(ctx context.Context, scope *tempstore.Scope, ref string) (*tempstore.File, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", ref, err)
	}
	// strip an optional #page fragment
	u.Fragment = ""

	switch u.Scheme {
	case "s3":
		return f.fetchS3(ctx, scope, u)
	case "http", "https":
		return f.fetchHTTP(ctx, scope, u)
	default:
		return nil, fmt.Errorf("%q: %w", u.Scheme, ErrUnsupportedScheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, scope *tempstore.Scope, u *url.URL) (*tempstore.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, ErrTooLarge
	}

	file, fh, err := scope.Create("fetched", path.Ext(u.Path))
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	n, err := io.Copy(fh, body)
	if err != nil {
		return nil, err
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return nil, ErrTooLarge
	}
	file.Original = path.Base(u.Path)
	zerolog.Ctx(ctx).Info().Str("host", u.Host).Int64("bytes", n).Msg("fetched remote file")
	return file, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, scope *tempstore.Scope, u *url.URL) (*tempstore.File, error) {
	bucket, key, err := ParseS3(u)
	if err != nil {
		return nil, err
	}
	client, err := f.s3Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	if f.maxBytes > 0 {
		head, err := client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
		}
		if aws.ToInt64(head.ContentLength) > f.maxBytes {
			return nil, ErrTooLarge
		}
	}

	file, fh, err := scope.Create("s3", path.Ext(key))
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	n, err := manager.NewDownloader(client).Download(ctx, fh, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return nil, ErrTooLarge
	}
	file.Original = path.Base(key)
	zerolog.Ctx(ctx).Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 object")
	return file, nil
}

func (f *Fetcher) s3Client(ctx context.Context) (S3Client, error) {
	f.s3Once.Do(func() {
		cfg, err := awscfg.LoadDefaultConfig(ctx)
		if err != nil {
			f.s3Err = err
			return
		}
		f.s3 = s3.NewFromConfig(cfg)
	})
	return f.s3, f.s3Err
}

// ParseS3 splits s3://bucket/key.
func ParseS3(u *url.URL) (bucket, key string, err error) {
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 url: %s", u.String())
	}
	return bucket, key, nil
}
