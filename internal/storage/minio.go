package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/pkg/logger"
)

// ObjectStore holds avatar and group logo blobs in a single MinIO bucket.
// Objects are keyed by upload ID; presigned URLs are handed to the frontend
// instead of proxying the bytes.
type ObjectStore struct {
	client       *minio.Client
	publicClient *minio.Client // signs URLs against the browser-reachable endpoint
	bucket       string
}

func NewObjectStore(cfg config.MinIOConfig) (*ObjectStore, error) {
	creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	store := &ObjectStore{client: client, bucket: cfg.Bucket}

	if cfg.PublicEndpoint != "" && cfg.PublicEndpoint != cfg.Endpoint {
		publicClient, err := minio.New(cfg.PublicEndpoint, &minio.Options{
			Creds:  creds,
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		store.publicClient = publicClient
	}

	return store, nil
}

func (o *ObjectStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := o.client.PutObject(ctx, o.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("object_upload_failed", err, map[string]interface{}{
			"object_name":  objectName,
			"size":         size,
			"content_type": contentType,
			"bucket":       o.bucket,
		})
		return err
	}
	logger.Info("object_uploaded", map[string]interface{}{
		"object_name": objectName,
		"size":        size,
		"bucket":      o.bucket,
	})
	return nil
}

func (o *ObjectStore) Download(ctx context.Context, objectName string) (*minio.Object, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		logger.Error("object_download_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      o.bucket,
		})
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		return nil, err
	}
	return obj, nil
}

func (o *ObjectStore) Delete(ctx context.Context, objectName string) error {
	err := o.client.RemoveObject(ctx, o.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		logger.Error("object_delete_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      o.bucket,
		})
	}
	return err
}

// PresignedGetURL signs a time-limited download URL. When a public endpoint
// is configured the signature is computed against it so the URL works from
// outside the deployment network.
func (o *ObjectStore) PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	client := o.client
	if o.publicClient != nil {
		client = o.publicClient
	}
	urlValue, err := client.PresignedGetObject(ctx, o.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return urlValue.String(), nil
}

func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", o.bucket, err)
	}
	return nil
}
