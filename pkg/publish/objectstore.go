package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wdm0006/labeletl/pkg/etl"
	"github.com/wdm0006/labeletl/pkg/logging"
)

type ObjectStoreConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Prefix       string
	Region       string
	UseSSL       bool
	CreateBucket bool
}

func (c ObjectStoreConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, errors.New("object store endpoint is required"))
	}
	if strings.Contains(c.Endpoint, "://") {
		errs = append(errs, errors.New("object store endpoint must be host[:port] without scheme"))
	}
	if strings.TrimSpace(c.Bucket) == "" {
		errs = append(errs, errors.New("object store bucket is required"))
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		errs = append(errs, errors.New("object store access key and secret key are required"))
	}
	return errors.Join(errs...)
}

// ObjectStore uploads outputs to an S3-compatible bucket. Objects are keyed by
// Prefix, the run directory and the file name.
type ObjectStore struct {
	client *minio.Client
	cfg    ObjectStoreConfig
}

func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return &ObjectStore{client: client, cfg: cfg}, nil
}

func (o *ObjectStore) Name() string { return "objectstore" }

// Key maps a local output path to its object key.
func (o *ObjectStore) Key(local string) string {
	dir := filepath.Base(filepath.Dir(local))
	return path.Join(strings.Trim(o.cfg.Prefix, "/"), dir, filepath.Base(local))
}

func (o *ObjectStore) Publish(ctx context.Context, local string) (string, error) {
	if o.cfg.CreateBucket {
		if err := ensureBucket(ctx, o.client, o.cfg.Bucket, o.cfg.Region); err != nil {
			return "", etl.Resource("ensure bucket", o.cfg.Bucket, err)
		}
	}
	key := o.Key(local)
	info, err := o.client.FPutObject(ctx, o.cfg.Bucket, key, local, minio.PutObjectOptions{
		ContentType: contentType(local),
	})
	if err != nil {
		return "", etl.Resource("upload", local, err)
	}
	logging.WithFields(ctx, "bucket", info.Bucket, "key", info.Key).Info("output uploaded", "size", info.Size)
	return fmt.Sprintf("s3://%s/%s", info.Bucket, info.Key), nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
