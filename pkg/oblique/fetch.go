package oblique

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Fetcher retrieves metadata documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches documents over HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch performs a GET request and returns the body of a 200 response.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ErrFetch{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", url)
	}
	return data, nil
}

// FileFetcher reads documents from the local file system. Relative paths
// are resolved against Root.
type FileFetcher struct {
	Root string
}

// Fetch reads the file at url, which may carry a file:// prefix.
func (f *FileFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(url, "file://")
	if f.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.Root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// S3Fetcher reads documents addressed as s3://bucket/key.
type S3Fetcher struct {
	API s3iface.S3API
}

// Fetch downloads the object named by url.
func (f *S3Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	bucket, key, err := splitS3URL(url)
	if err != nil {
		return nil, err
	}

	out, err := f.API.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get s3://%s/%s", bucket, key)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func splitS3URL(url string) (string, string, error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", errors.Errorf("not an s3 url: %s", url)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Errorf("s3 url needs bucket and key: %s", url)
	}
	return bucket, key, nil
}

// SchemeFetcher dispatches on the URL scheme. URLs without a scheme are read
// from the file system.
type SchemeFetcher struct {
	HTTP Fetcher
	S3   Fetcher
	File Fetcher
}

// NewSchemeFetcher returns a fetcher for http(s) and file URLs. S3 is only
// available when an S3Fetcher is set.
func NewSchemeFetcher() *SchemeFetcher {
	return &SchemeFetcher{
		HTTP: &HTTPFetcher{},
		File: &FileFetcher{},
	}
}

// Fetch routes url to the fetcher of its scheme and decompresses .zst
// documents.
func (f *SchemeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var target Fetcher
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		target = f.HTTP
	case strings.HasPrefix(url, "s3://"):
		target = f.S3
	default:
		target = f.File
	}
	if target == nil {
		return nil, errors.Errorf("no fetcher configured for %s", url)
	}

	data, err := target.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(url, ".zst") {
		return decompressZstd(data)
	}
	return data, nil
}

func decompressZstd(data []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "open zstd stream")
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "decompress zstd")
	}
	return out, nil
}

// baseURL returns the directory part of a document URL.
func baseURL(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[:i]
	}
	return "."
}
