/*
Package storage archives finished drawings to S3-compatible object storage.
*/
package storage

import (
	"context"
	"io"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// StorageService defines the public interface for the object storage service.
type StorageService interface {
	// Upload writes body under key, replacing any existing object.
	Upload(ctx context.Context, key string, contentType string, body io.Reader) error
}

// NewStorageService is the factory function for StorageService.
// It initializes and returns a concrete implementation based on the provided configuration.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	// Currently, only S3 compatible implementations are supported.
	return newS3Client(ctx, cfg)
}
