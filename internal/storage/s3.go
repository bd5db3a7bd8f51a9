package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/BradenHooton/vetconnect/internal/apperrors"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config selects the region and, for S3-compatible services, the endpoint
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3Store implements ObjectStore on Amazon S3
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Store loads the default AWS credential chain and builds the client
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("max-age=3600"),
	})
	if err != nil {
		return providerError(fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err))
	}
	return nil
}

func (s *S3Store) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", providerError(fmt.Errorf("failed to presign %s/%s: %w", bucket, key, err))
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return providerError(fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err))
	}
	return nil
}

// providerError tags an S3 failure with the storage/* code used for user messages
func providerError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.Network(err)
	}

	code := "storage/unknown"
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			code = "storage/object-not-found"
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			code = "storage/unauthorized"
		case "InvalidArgument", "InvalidRequest", "EntityTooLarge":
			code = "storage/invalid-argument"
		}
	}
	return apperrors.Storage(code, err)
}
