package aws

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Uploader stores listing images in a bucket and hands back their public URL.
type S3Uploader struct {
	uploader      *manager.Uploader
	bucket        string
	prefix        string
	publicBaseURL string
}

// NewS3Uploader creates an uploader. publicBaseURL is the CDN or bucket website
// URL that objects are served from; when empty the virtual-hosted S3 URL is used.
func NewS3Uploader(cfg sdkaws.Config, bucket, prefix, publicBaseURL string) *S3Uploader {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = localEndpoint() != ""
	})
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, cfg.Region)
	}
	return &S3Uploader{
		uploader:      manager.NewUploader(client),
		bucket:        bucket,
		prefix:        strings.Trim(prefix, "/"),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Upload writes data under a random key and returns the object's public URL.
func (u *S3Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty upload")
	}
	key := u.objectKey(contentType)
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      sdkaws.String(u.bucket),
		Key:         sdkaws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: sdkaws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed for key %s: %w", key, err)
	}
	return u.publicBaseURL + "/" + key, nil
}

func (u *S3Uploader) objectKey(contentType string) string {
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	name := uuid.NewString() + ext
	if u.prefix == "" {
		return name
	}
	return u.prefix + "/" + name
}
