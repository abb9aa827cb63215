package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config describes an S3-compatible bucket.
type S3Config struct {
	Bucket string

	// PublicBaseURL, when set, is the public origin serving the bucket
	// (a CDN or R2 public domain). Otherwise virtual-hosted AWS URLs are
	// used.
	PublicBaseURL string

	// Endpoint overrides the AWS endpoint for S3-compatible providers.
	Endpoint string
}

// S3Store writes objects to an S3-compatible bucket.
type S3Store struct {
	client s3API
	region string
	cfg    S3Config
}

// NewS3Store creates an S3Store using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: S3 bucket must not be empty")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to load AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, region: awsCfg.Region, cfg: cfg}, nil
}

func (s *S3Store) Put(ctx context.Context, req *PutRequest) (*BlobRef, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(req.ObjectName),
		Body:   req.Content,
	}
	if req.ContentType != "" {
		in.ContentType = aws.String(req.ContentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return nil, fmt.Errorf("storage: upload failed for %q: %w", req.ObjectName, err)
	}
	return &BlobRef{Bucket: s.cfg.Bucket, ObjectName: req.ObjectName}, nil
}

// ResolveDownloadURI confirms the object exists and returns its public URL.
func (s *S3Store) ResolveDownloadURI(ctx context.Context, ref *BlobRef) (string, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.ObjectName),
	})
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return "", fmt.Errorf("storage: %q: %w", ref.ObjectName, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("storage: failed to stat %q: %w", ref.ObjectName, err)
	}
	return s.publicURL(ref), nil
}

func (s *S3Store) Delete(ctx context.Context, ref *BlobRef) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.ObjectName),
	})
	if err != nil {
		return fmt.Errorf("storage: failed to delete %q: %w", ref.ObjectName, err)
	}
	return nil
}

func (s *S3Store) publicURL(ref *BlobRef) string {
	escaped := (&url.URL{Path: ref.ObjectName}).EscapedPath()
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + escaped
	}
	if s.region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", ref.Bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", ref.Bucket, s.region, escaped)
}
