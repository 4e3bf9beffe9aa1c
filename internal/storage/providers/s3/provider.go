// Package s3 implements storage.Store on top of an S3-compatible bucket.
// A "folder" is a key prefix under the configured root; folder identifiers
// are the full prefix, so they stay valid across process restarts.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/threadvault/threadvault/internal/config"
	"github.com/threadvault/threadvault/internal/storage"
)

// api is the subset of the S3 client the store depends on.
type api interface {
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// uploaderAPI is the subset of the transfer manager used for streamed uploads.
type uploaderAPI interface {
	Upload(ctx context.Context, input *awss3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Store is an S3-backed storage.Store.
type Store struct {
	client     api
	uploader   uploaderAPI
	bucket     string
	rootPrefix string
	logger     *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New creates an S3 store from the default credential chain.
func New(ctx context.Context, log *slog.Logger, cfg config.StorageConfig) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     cfg.Bucket,
		rootPrefix: strings.Trim(cfg.RootPrefix, "/"),
		logger:     log.With(slog.String("service", "storage.s3")),
	}, nil
}

// FindFolder looks for any object under the folder's prefix. The marker
// object written by CreateFolder guarantees non-empty folders are found.
func (s *Store) FindFolder(ctx context.Context, name string) (string, error) {
	prefix, err := s.folderPrefix(name)
	if err != nil {
		return "", err
	}

	out, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("list folder %q: %w", name, err)
	}
	if len(out.Contents) == 0 {
		return "", storage.ErrFolderNotFound
	}
	return prefix, nil
}

// CreateFolder writes a zero-byte marker object so the folder is
// discoverable before its first upload lands.
func (s *Store) CreateFolder(ctx context.Context, name string) (string, error) {
	prefix, err := s.folderPrefix(name)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(prefix),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}

	s.logger.Info("folder created", slog.String("name", name), slog.String("prefix", prefix))
	return prefix, nil
}

// Upload streams the object under the folder prefix via the transfer
// manager, which splits large bodies into concurrent parts.
func (s *Store) Upload(ctx context.Context, folderID string, obj storage.Object) (string, error) {
	if obj.Reader == nil {
		return "", fmt.Errorf("object reader is required")
	}
	name := strings.TrimSpace(obj.Name)
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidName, obj.Name)
	}

	key := folderID + name
	input := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   obj.Reader,
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload %q: %w", key, err)
	}
	return key, nil
}

func (s *Store) folderPrefix(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}
	return path.Join(s.rootPrefix, name) + "/", nil
}
