package storage

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rotisserie/eris"

	"dataset-platform/config"
)

// ObjectStore wraps the S3 client for an S3-compatible store (MinIO in local
// deployments). All API calls go through the internal endpoint; presigned
// URLs handed to browsers are rewritten to the public endpoint.
type ObjectStore struct {
	client         *s3.Client
	presign        *s3.PresignClient
	endpointPublic string
	presignExpires time.Duration
}

// New creates an object store from the S3 section of the service config.
func New(ctx context.Context, cfg config.S3Config) (*ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, eris.Wrap(err, "storage: load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.EndpointInternal)
		o.UsePathStyle = true
	})

	return &ObjectStore{
		client:         client,
		presign:        s3.NewPresignClient(client),
		endpointPublic: cfg.EndpointPublic,
		presignExpires: time.Duration(cfg.PresignExpiresS) * time.Second,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return eris.Wrapf(err, "storage: create bucket %s", bucket)
	}
	return nil
}

// PutObject writes an object in one call. Used for exports, which are built
// server-side; client uploads never pass through the service.
func (s *ObjectStore) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return eris.Wrapf(err, "storage: put object %s/%s", bucket, key)
	}
	return nil
}

// ObjectExists checks object presence via a HEAD request. A missing key is
// not an error; transport failures are.
func (s *ObjectStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, eris.Wrapf(err, "storage: head object %s/%s", bucket, key)
	}
	return true, nil
}

// PresignPut returns a presigned PUT URL for a direct client upload,
// rewritten to the public endpoint.
func (s *ObjectStore) PresignPut(ctx context.Context, bucket, key, contentType string) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.presignExpires))
	if err != nil {
		return "", eris.Wrapf(err, "storage: presign put %s/%s", bucket, key)
	}
	return rewriteEndpoint(req.URL, s.endpointPublic)
}

// PresignGet returns a presigned GET URL for a direct client download,
// rewritten to the public endpoint.
func (s *ObjectStore) PresignGet(ctx context.Context, bucket, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignExpires))
	if err != nil {
		return "", eris.Wrapf(err, "storage: presign get %s/%s", bucket, key)
	}
	return rewriteEndpoint(req.URL, s.endpointPublic)
}

// rewriteEndpoint swaps the scheme and host of a presigned URL for the public
// endpoint's, leaving path and query untouched so the signature stays valid
// for stores that sign only the path.
func rewriteEndpoint(raw, publicEndpoint string) (string, error) {
	if publicEndpoint == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "storage: parse presigned url")
	}
	pub, err := url.Parse(publicEndpoint)
	if err != nil {
		return "", eris.Wrap(err, "storage: parse public endpoint")
	}
	u.Scheme = pub.Scheme
	u.Host = pub.Host
	return u.String(), nil
}

// ParseURI splits an s3://bucket/key storage path.
func ParseURI(uri string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", eris.Errorf("storage: not an s3 uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", eris.Errorf("storage: malformed s3 uri: %s", uri)
	}
	return parts[0], parts[1], nil
}

// URI formats a bucket and key as an s3:// storage path.
func URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
