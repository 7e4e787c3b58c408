package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/hidata/rag-platform/pkg/logger"
)

// Folder prefixes used by the ingestion pipeline.
const (
	FolderFiles        = "files"
	FolderVectorizedDB = "vectorized_db"
)

// ErrNoSuchObject is returned when a prefix matches nothing.
var ErrNoSuchObject = errors.New("no object matches prefix")

// BlobStore wraps S3 object storage. Keys are laid out as
// "{namespace}/{folder}/{name}".
type BlobStore struct {
	client    *s3.Client
	bucket    string
	namespace string
	logger    *logger.Logger
}

// BlobConfig configures the blob store.
type BlobConfig struct {
	Region    string
	Bucket    string
	Namespace string
	Endpoint  string // non-empty only for local testing
}

// NewBlobStore builds an S3-backed blob store.
func NewBlobStore(ctx context.Context, cfg BlobConfig, log *logger.Logger) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob store bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &BlobStore{
		client:    client,
		bucket:    cfg.Bucket,
		namespace: cfg.Namespace,
		logger:    log,
	}, nil
}

func (b *BlobStore) key(folder, name string) string {
	return path.Join(b.namespace, folder, name)
}

// Put uploads an object with optional string metadata.
func (b *BlobStore) Put(ctx context.Context, folder, name string, body io.Reader, metadata map[string]string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(b.key(folder, name)),
		Body:     body,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("uploading %s/%s: %w", folder, name, err)
	}
	return nil
}

// PutFile uploads a local file.
func (b *BlobStore) PutFile(ctx context.Context, folder, localPath, name string, metadata map[string]string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()
	return b.Put(ctx, folder, name, f, metadata)
}

// List returns object names (namespace and folder stripped) under a folder,
// optionally filtered by a name prefix.
func (b *BlobStore) List(ctx context.Context, folder, namePrefix string) ([]string, error) {
	return listObjectNames(ctx, b.client, b.bucket, b.key(folder, namePrefix), b.key(folder, "")+"/")
}

// listObjectNames walks every page of a prefix listing. Buckets can hold
// more objects than one ListObjectsV2 page returns.
func listObjectNames(ctx context.Context, client s3.ListObjectsV2APIClient, bucket, prefix, strip string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	names := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), strip))
		}
	}
	return names, nil
}

// Get returns a reader over an object's content. The caller closes it.
func (b *BlobStore) Get(ctx context.Context, folder, name string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(folder, name)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s: %w", folder, name, err)
	}
	return out.Body, nil
}

// Delete removes an object.
func (b *BlobStore) Delete(ctx context.Context, folder, name string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(folder, name)),
	})
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", folder, name, err)
	}
	return nil
}

// DownloadByPrefix fetches the first object whose name starts with prefix
// into dstDir and returns the local path.
func (b *BlobStore) DownloadByPrefix(ctx context.Context, folder, prefix, dstDir string) (string, error) {
	names, err := b.List(ctx, folder, prefix)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s/%s", ErrNoSuchObject, folder, prefix)
	}

	name := names[0]
	body, err := b.Get(ctx, folder, name)
	if err != nil {
		return "", err
	}
	defer body.Close()

	localPath := filepath.Join(dstDir, filepath.Base(name))
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("writing %s: %w", localPath, err)
	}

	b.logger.Info("downloaded object", zap.String("key", b.key(folder, name)), zap.String("path", localPath))
	return localPath, nil
}
