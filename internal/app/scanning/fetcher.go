package scanning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/pkg/common/logger"
)

const (
	fetchInitialInterval = 250 * time.Millisecond
	fetchMaxRetries      = 3
)

// ObjectFetcher retrieves eligible object content using a head-then-get
// sequence: metadata first, eligibility check, then the body. Transient
// store faults are retried with exponential backoff; terminal errors
// (missing object, filter rejection) surface immediately.
type ObjectFetcher struct {
	store  scanning.ObjectStore
	filter *ObjectFilter

	tracer trace.Tracer
	logger *logger.Logger
}

// NewObjectFetcher creates an ObjectFetcher over the given store and filter.
func NewObjectFetcher(
	store scanning.ObjectStore,
	filter *ObjectFilter,
	tracer trace.Tracer,
	logger *logger.Logger,
) *ObjectFetcher {
	return &ObjectFetcher{store: store, filter: filter, tracer: tracer, logger: logger}
}

// Fetch returns the content of the referenced object, or a classifying
// error: scanning.ErrObjectNotFound, scanning.ErrUnsupportedType,
// scanning.ErrObjectTooLarge, or a wrapped store fault once retries are
// exhausted. The size ceiling is enforced twice, on the head metadata and on
// the downloaded body, because head-then-get is not atomic and the object
// can change in between.
func (f *ObjectFetcher) Fetch(ctx context.Context, ref scanning.ObjectRef) ([]byte, error) {
	ctx, span := f.tracer.Start(ctx, "object_fetcher.fetch",
		trace.WithAttributes(
			attribute.String("bucket", ref.Bucket),
			attribute.String("key", ref.Key),
		))
	defer span.End()

	info, err := f.headWithRetry(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "head failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("size_bytes", info.SizeBytes))

	candidate := scanning.ObjectCandidate{
		Ref:       ref,
		Extension: ExtensionOf(ref.Key),
		SizeBytes: info.SizeBytes,
	}
	if err := f.filter.Check(candidate); err != nil {
		span.AddEvent("object_filtered", trace.WithAttributes(
			attribute.String("reason", err.Error()),
		))
		return nil, err
	}

	data, err := f.getWithRetry(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get failed")
		return nil, err
	}

	// The object may have grown between head and get.
	if int64(len(data)) > f.filter.MaxSize() {
		span.AddEvent("object_grew_past_ceiling")
		return nil, scanning.ErrObjectTooLarge
	}

	span.SetStatus(codes.Ok, "object fetched")
	return data, nil
}

func (f *ObjectFetcher) headWithRetry(ctx context.Context, ref scanning.ObjectRef) (scanning.ObjectInfo, error) {
	var info scanning.ObjectInfo
	operation := func() error {
		var err error
		info, err = f.store.Head(ctx, ref)
		return classifyRetry(err)
	}
	if err := backoff.Retry(operation, f.newBackOff(ctx)); err != nil {
		return scanning.ObjectInfo{}, fmt.Errorf("head %s: %w", ref, err)
	}
	return info, nil
}

func (f *ObjectFetcher) getWithRetry(ctx context.Context, ref scanning.ObjectRef) ([]byte, error) {
	var data []byte
	operation := func() error {
		var err error
		data, err = f.store.Get(ctx, ref)
		return classifyRetry(err)
	}
	if err := backoff.Retry(operation, f.newBackOff(ctx)); err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return data, nil
}

func (f *ObjectFetcher) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = fetchInitialInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, fetchMaxRetries), ctx)
}

// classifyRetry maps store errors onto backoff semantics: only transient
// faults are retried, everything else aborts the retry loop and surfaces
// unchanged.
func classifyRetry(err error) error {
	if err == nil {
		return nil
	}
	if scanning.IsTransient(err) {
		return err
	}
	if errors.Is(err, scanning.ErrObjectNotFound) {
		return backoff.Permanent(scanning.ErrObjectNotFound)
	}
	return backoff.Permanent(err)
}
