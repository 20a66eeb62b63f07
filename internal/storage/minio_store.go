package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL *url.URL
	useSSL  bool
	log     zerolog.Logger
}

// NewMinioStore conecta no MinIO/S3 e garante que o bucket existe.
func NewMinioStore(ctx context.Context, cfg Config, log zerolog.Logger) (*MinioStore, error) {
	s, err := newMinioStore(cfg, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Cria bucket se não existir
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errBucketExists := s.client.BucketExists(ctx, s.bucket)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("create/check bucket %s: %w", s.bucket, err)
		}
	}

	s.log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", s.bucket).Msg("connected to object storage")
	return s, nil
}

// newMinioStore monta o cliente sem tocar na rede.
func newMinioStore(cfg Config, log zerolog.Logger) (*MinioStore, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY / MINIO_SECRET_KEY not set")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "snapshots"
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	var u *url.URL
	if cfg.PublicBaseURL != "" {
		u, err = url.Parse(cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid MINIO_PUBLIC_BASE_URL: %w", err)
		}
	}

	return &MinioStore{
		client:  cli,
		bucket:  cfg.Bucket,
		baseURL: u,
		useSSL:  cfg.UseSSL,
		log:     log.With().Str("component", "storage").Logger(),
	}, nil
}

func (s *MinioStore) PutFile(ctx context.Context, key, path, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	info, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.log.Debug().Str("key", key).Int64("size", info.Size).Msg("object uploaded")
	return s.ObjectURL(key), nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.ObjectURL(key), nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError(key, err)
	}
	return data, nil
}

// Copy faz a cópia do lado do servidor (usado pro alias latest/).
func (s *MinioStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, translateError(srcKey, err))
	}
	return nil
}

// ObjectURL devolve a URL pública do objeto, ou a URL crua do endpoint S3.
func (s *MinioStore) ObjectURL(key string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		if u.Path == "" || u.Path == "/" {
			u.Path = "/" + key
		} else {
			u.Path = strings.TrimSuffix(u.Path, "/") + "/" + key
		}
		return u.String()
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.EndpointURL().Host, s.bucket, key)
}

func translateError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}
