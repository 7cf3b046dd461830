// Package memory implements the scanning repositories in memory, mirroring
// the PostgreSQL adapters' semantics: transactional status+findings writes,
// terminal-state immutability, and finding deduplication. Tests use the
// fault-injection hooks to exercise retry paths.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

type findingKey struct {
	jobID  uuid.UUID
	bucket string
	key    string
	kind   scanning.DetectorKind
	offset int
}

// StatusStore implements scanning.StatusRepository in memory.
type StatusStore struct {
	mu       sync.RWMutex
	statuses map[string]scanning.ObjectScanStatus
	findings map[findingKey]scanning.Finding

	failNext error
}

// NewStatusStore creates an empty in-memory status repository.
func NewStatusStore() *StatusStore {
	return &StatusStore{
		statuses: make(map[string]scanning.ObjectScanStatus),
		findings: make(map[findingKey]scanning.Finding),
	}
}

// FailNextWrites makes every subsequent RecordScan return err until cleared
// with a nil err.
func (s *StatusStore) FailNextWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func statusKey(jobID uuid.UUID, ref scanning.ObjectRef) string {
	return jobID.String() + "/" + ref.String()
}

// RecordScan implements the transactional upsert: either the status row and
// all findings land, or nothing does. Terminal rows only accept idempotent
// re-application of the same state.
func (s *StatusStore) RecordScan(ctx context.Context, status scanning.ObjectScanStatus, findings []scanning.Finding) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		return s.failNext
	}

	key := statusKey(status.JobID, status.Ref)
	if existing, ok := s.statuses[key]; ok {
		if err := existing.State.ValidateTransition(status.State); err != nil {
			// Mirrors the SQL guard: the write is silently absorbed rather
			// than rejected, since redelivery races are expected.
			return nil
		}
	}

	s.statuses[key] = status
	for _, f := range findings {
		fk := findingKey{jobID: f.JobID, bucket: f.Ref.Bucket, key: f.Ref.Key, kind: f.Kind, offset: f.Offset}
		if _, ok := s.findings[fk]; ok {
			continue
		}
		s.findings[fk] = f
	}
	return nil
}

// ListActiveJobIDs implements scanning.StatusRepository.
func (s *StatusStore) ListActiveJobIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	var jobIDs []uuid.UUID
	for _, st := range s.statuses {
		if st.UpdatedAt.Before(since) {
			continue
		}
		if _, ok := seen[st.JobID]; ok {
			continue
		}
		seen[st.JobID] = struct{}{}
		jobIDs = append(jobIDs, st.JobID)
	}
	return jobIDs, nil
}

// AggregateJob implements scanning.StatusRepository.
func (s *StatusStore) AggregateJob(ctx context.Context, jobID uuid.UUID) (scanning.JobProgress, error) {
	if err := ctx.Err(); err != nil {
		return scanning.JobProgress{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	progress := scanning.JobProgress{JobID: jobID}
	for _, st := range s.statuses {
		if st.JobID != jobID {
			continue
		}
		progress.TotalObjects++
		progress.FindingTotal += st.FindingCount
		switch st.State {
		case scanning.ScanStateScanned:
			progress.ScannedCount++
		case scanning.ScanStateSkipped:
			progress.SkippedCount++
		case scanning.ScanStateFailed:
			progress.FailedCount++
		}
	}
	return progress, nil
}

// Status returns the stored status row for an object, if any.
func (s *StatusStore) Status(jobID uuid.UUID, ref scanning.ObjectRef) (scanning.ObjectScanStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[statusKey(jobID, ref)]
	return st, ok
}

// FindingsFor returns the stored findings for an object.
func (s *StatusStore) FindingsFor(jobID uuid.UUID, ref scanning.ObjectRef) []scanning.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scanning.Finding
	for _, f := range s.findings {
		if f.JobID == jobID && f.Ref == ref {
			out = append(out, f)
		}
	}
	return out
}

// ProgressStore implements scanning.ProgressRepository in memory.
type ProgressStore struct {
	mu       sync.RWMutex
	progress map[uuid.UUID]scanning.JobProgress
}

// NewProgressStore creates an empty in-memory progress repository.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{progress: make(map[uuid.UUID]scanning.JobProgress)}
}

// Upsert implements scanning.ProgressRepository.
func (p *ProgressStore) Upsert(ctx context.Context, progress scanning.JobProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if progress.JobID == uuid.Nil {
		return fmt.Errorf("progress row missing job id")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress[progress.JobID] = progress
	return nil
}

// Get implements scanning.ProgressRepository.
func (p *ProgressStore) Get(ctx context.Context, jobID uuid.UUID) (scanning.JobProgress, error) {
	if err := ctx.Err(); err != nil {
		return scanning.JobProgress{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	progress, ok := p.progress[jobID]
	if !ok {
		return scanning.JobProgress{}, scanning.ErrNoProgressFound
	}
	return progress, nil
}
