package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 stores documents as objects under Prefix in Bucket. The reference is
// the object key.
type S3 struct {
	client s3API
	Bucket string
	Prefix string
}

func NewS3(ctx context.Context, bucket, prefix string) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for S3: %w", err)
	}
	return &S3{client: s3.NewFromConfig(awsCfg), Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

func (s *S3) Store(ctx context.Context, name string, data []byte) (string, error) {
	ext := safeExt(name)
	key := path.Join(s.Prefix, uuid.New().String()+ext)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to put s3 object %s: %w", key, err)
	}
	return key, nil
}

func (s *S3) Retrieve(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" || strings.Contains(ref, "..") || (s.Prefix != "" && !strings.HasPrefix(ref, s.Prefix+"/")) {
		return nil, ErrInvalidRef
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object %s: %w", ref, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
