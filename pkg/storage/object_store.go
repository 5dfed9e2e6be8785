package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const transcriptContentType = "application/json"

// TranscriptArchive stores finished session transcripts as JSON objects.
type TranscriptArchive interface {
	PutTranscript(ctx context.Context, key string, body []byte) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// TranscriptKey returns the object key of an archived session transcript.
func TranscriptKey(userID, sessionID string) string {
	return fmt.Sprintf("transcripts/%s/%s.json", url.PathEscape(userID), url.PathEscape(sessionID))
}

// MinioConfig locates a MinIO/S3 bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioArchive implements TranscriptArchive on MinIO/S3 compatible storage.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive connects to MinIO and creates the bucket when missing.
func NewMinioArchive(ctx context.Context, cfg MinioConfig) (*MinioArchive, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("minio bucket required")
	}
	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			// another replica may have won the race
			if resp := minio.ToErrorResponse(err); resp.Code != "BucketAlreadyOwnedByYou" {
				return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return &MinioArchive{client: client, bucket: bucket}, nil
}

// PutTranscript uploads one transcript, replacing any earlier archive of the
// same session.
func (m *MinioArchive) PutTranscript(ctx context.Context, key string, body []byte) error {
	opts := minio.PutObjectOptions{
		ContentType:  transcriptContentType,
		CacheControl: "private, no-cache",
	}
	if _, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)), opts); err != nil {
		return fmt.Errorf("put transcript %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited download URL that saves the transcript
// under its session name.
func (m *MinioArchive) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, downloadParams(key))
	if err != nil {
		return "", fmt.Errorf("presign transcript %s: %w", key, err)
	}
	return u.String(), nil
}

func downloadParams(key string) url.Values {
	name := path.Base(key)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", name))
	params.Set("response-content-type", transcriptContentType)
	return params
}
