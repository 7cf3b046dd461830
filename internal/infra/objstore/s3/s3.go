// Package s3 provides the S3-backed object store adapter. It speaks to any
// S3-compatible endpoint (AWS, MinIO) through the v2 SDK and maps provider
// errors onto the domain's retrieval error taxonomy.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

// Store implements scanning.ObjectStore on top of an S3 client.
type Store struct {
	client *awss3.Client
	tracer trace.Tracer
}

// NewStore creates a Store around an existing S3 client.
func NewStore(client *awss3.Client, tracer trace.Tracer) *Store {
	return &Store{client: client, tracer: tracer}
}

// NewClient builds an S3 client from a resolved AWS config. A non-empty
// endpoint overrides the default resolver, with path-style addressing for
// MinIO-style deployments.
func NewClient(cfg aws.Config, endpoint string) *awss3.Client {
	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// Head returns the object's metadata without downloading the body.
func (s *Store) Head(ctx context.Context, ref scanning.ObjectRef) (scanning.ObjectInfo, error) {
	ctx, span := s.tracer.Start(ctx, "s3.head_object",
		trace.WithAttributes(
			attribute.String("bucket", ref.Bucket),
			attribute.String("key", ref.Key),
		))
	defer span.End()

	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "head object failed")
		return scanning.ObjectInfo{}, classifyError(err)
	}

	span.SetStatus(codes.Ok, "head object")
	return scanning.ObjectInfo{
		SizeBytes:   aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// Get downloads the object's full content.
func (s *Store) Get(ctx context.Context, ref scanning.ObjectRef) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "s3.get_object",
		trace.WithAttributes(
			attribute.String("bucket", ref.Bucket),
			attribute.String("key", ref.Key),
		))
	defer span.End()

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get object failed")
		return nil, classifyError(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reading object body failed")
		return nil, scanning.Transient(fmt.Errorf("reading body of %s: %w", ref, err))
	}

	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	span.SetStatus(codes.Ok, "get object")
	return data, nil
}

// classifyError maps SDK errors into the domain taxonomy: a missing object
// becomes scanning.ErrObjectNotFound, throttling and server faults become
// transient (retryable), and everything else passes through unchanged.
func classifyError(err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return scanning.ErrObjectNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return scanning.ErrObjectNotFound
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
			"InternalError", "ServiceUnavailable":
			return scanning.Transient(err)
		}
	}

	var httpErr *smithyhttp.ResponseError
	if errors.As(err, &httpErr) {
		switch httpErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return scanning.ErrObjectNotFound
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return scanning.Transient(err)
		}
	}

	return err
}
