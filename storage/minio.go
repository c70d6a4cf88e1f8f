package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// MinIOSecretName is the Secret holding endpoint and credentials
const MinIOSecretName = "minio-secret"

// MinIOClient mirrors saved models into a bucket
type MinIOClient struct {
	client *minio.Client
	bucket string
}

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// MinIOConfigFromSecret reads connection settings from the minio-secret Secret
func MinIOConfigFromSecret(ctx context.Context, k8sClient kubernetes.Interface, namespace, bucket string) (MinIOConfig, error) {
	secret, err := k8sClient.CoreV1().Secrets(namespace).Get(ctx, MinIOSecretName, metav1.GetOptions{})
	if err != nil {
		return MinIOConfig{}, fmt.Errorf("failed to get %s: %w", MinIOSecretName, err)
	}

	cfg := MinIOConfig{
		Endpoint:  string(secret.Data["endpoint"]),
		AccessKey: string(secret.Data["accesskey"]),
		SecretKey: string(secret.Data["secretkey"]),
		UseSSL:    string(secret.Data["usessl"]) == "true",
		Bucket:    bucket,
	}
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return MinIOConfig{}, fmt.Errorf("%s is missing required fields (endpoint, accesskey, secretkey)", MinIOSecretName)
	}
	return cfg, nil
}

// NewMinIOClient creates a MinIO client with explicit configuration
func NewMinIOClient(config MinIOConfig) (*MinIOClient, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("MinIO bucket is required")
	}
	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	log.Printf("MinIO client initialized (endpoint: %s, bucket: %s)", config.Endpoint, config.Bucket)
	return &MinIOClient{client: minioClient, bucket: config.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (m *MinIOClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if exists {
		return nil
	}

	log.Printf("Creating MinIO bucket: %s", m.bucket)
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectName is the key of one artifact file of a model
func ObjectName(model, file string) string {
	return path.Join("models", model, filepath.Base(file))
}

// MirrorModel uploads every artifact file of a saved model
func (m *MinIOClient) MirrorModel(ctx context.Context, name string, paths ArtifactPaths) error {
	if err := m.EnsureBucket(ctx); err != nil {
		return err
	}
	for _, p := range paths.All() {
		if _, err := m.client.FPutObject(ctx, m.bucket, ObjectName(name, p), p, minio.PutObjectOptions{
			ContentType: "application/json",
		}); err != nil {
			return fmt.Errorf("failed to upload %s: %w", p, err)
		}
	}
	log.Printf("Model %s mirrored to %s/models/%s", name, m.bucket, name)
	return nil
}

// FetchModel downloads the artifact files of a model into dir
func (m *MinIOClient) FetchModel(ctx context.Context, name, dir string) (ArtifactPaths, error) {
	paths := PathsFor(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return paths, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for _, p := range paths.All() {
		obj, err := m.client.GetObject(ctx, m.bucket, ObjectName(name, p), minio.GetObjectOptions{})
		if err != nil {
			return paths, fmt.Errorf("failed to get object: %w", err)
		}
		err = writeFileAtomic(p, func(w io.Writer) error {
			_, err := io.Copy(w, obj)
			return err
		})
		obj.Close()
		if err != nil {
			return paths, err
		}
	}
	log.Printf("Model %s fetched from %s into %s", name, m.bucket, dir)
	return paths, nil
}
