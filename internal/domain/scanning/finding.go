package scanning

import "github.com/google/uuid"

// DetectorKind identifies one of the fixed set of sensitive-data detectors.
// The set is closed; adding a kind requires a new detector rule, validator
// coverage, and a masker.
type DetectorKind string

const (
	DetectorKindSSN          DetectorKind = "ssn"
	DetectorKindCreditCard   DetectorKind = "credit_card"
	DetectorKindAWSAccessKey DetectorKind = "aws_access_key"
	DetectorKindAWSSecretKey DetectorKind = "aws_secret_key"
	DetectorKindEmail        DetectorKind = "email"
	DetectorKindPhone        DetectorKind = "phone"
)

// String returns the string representation of the DetectorKind.
func (k DetectorKind) String() string { return string(k) }

// AllDetectorKinds returns the closed set of detector kinds.
func AllDetectorKinds() []DetectorKind {
	return []DetectorKind{
		DetectorKindSSN,
		DetectorKindCreditCard,
		DetectorKindAWSAccessKey,
		DetectorKindAWSSecretKey,
		DetectorKindEmail,
		DetectorKindPhone,
	}
}

// RawFinding is a detection result without job context, as produced by the
// detector engine. The raw matched text is intentionally absent; only the
// masked representation leaves the engine.
type RawFinding struct {
	Kind        DetectorKind
	MaskedMatch string
	Context     string
	Offset      int
}

// Finding is a persisted detection: a RawFinding bound to the job and object
// it was found in. Immutable once created.
type Finding struct {
	JobID       uuid.UUID
	Ref         ObjectRef
	Kind        DetectorKind
	MaskedMatch string
	Context     string
	Offset      int
}

// NewFinding binds a raw detector result to its job and object.
func NewFinding(jobID uuid.UUID, ref ObjectRef, raw RawFinding) Finding {
	return Finding{
		JobID:       jobID,
		Ref:         ref,
		Kind:        raw.Kind,
		MaskedMatch: raw.MaskedMatch,
		Context:     raw.Context,
		Offset:      raw.Offset,
	}
}
