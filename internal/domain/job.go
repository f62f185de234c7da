// Package domain contains core business types and interfaces.
//
// This file defines the ReportJob entity: the single row type behind the
// asynchronous report queue, its status machine, and the typed parameter
// payloads for each report type.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Job Type
// =============================================================================

// JobType discriminates the kind of report a job produces.
type JobType string

const (
	// JobTypeAuditReport generates a report for a single property audit.
	JobTypeAuditReport JobType = "audit_report"

	// JobTypeLocationOverview generates an overview report for a location
	// across a date range.
	JobTypeLocationOverview JobType = "location_overview"
)

// String returns the string representation of the job type.
func (t JobType) String() string {
	return string(t)
}

// IsValid returns true if the job type is a recognized value.
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeAuditReport, JobTypeLocationOverview:
		return true
	}
	return false
}

// =============================================================================
// Job Status
// =============================================================================

// JobStatus is the lifecycle state of a report job.
//
// The machine is strictly monotonic:
//
//	queued --claim--> processing --complete--> completed | failed
//
// completed and failed are terminal. There is no requeue, retry, or
// cancellation transition.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal returns true once no further transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// =============================================================================
// Artifact
// =============================================================================

// ArtifactRef points at a generated report document. The bytes live in the
// artifact store; the job row only records the key and serving metadata.
type ArtifactRef struct {
	Key         string // storage key of the document
	Filename    string // filename offered on download
	ContentType string // MIME type offered on download
}

// =============================================================================
// Report Job
// =============================================================================

// ReportJob is the sole entity of the report queue. A row is created at
// submission, advanced to processing by exactly one claimer, and finished by
// a single terminal write. Rows are never deleted by this subsystem.
type ReportJob struct {
	ID          uuid.UUID       // primary key, generated at submission
	Type        JobType         // report discriminator
	Params      json.RawMessage // canonical parameter payload, immutable
	Status      JobStatus       // current lifecycle state
	CreatedAt   time.Time       // submission time, orders the FIFO queue
	StartedAt   *time.Time      // set exactly once at the queued->processing claim
	CompletedAt *time.Time      // set iff status is terminal
	Error       string          // failure reason, set only on failed
	Artifact    *ArtifactRef    // present iff status is completed
}

// DownloadReady reports whether the artifact can be served.
func (j *ReportJob) DownloadReady() bool {
	return j.Status == JobStatusCompleted && j.Artifact != nil
}

// Fingerprint derives the dedup key for this job from its type and
// parameters. It is never persisted; equal fingerprints mean the job would
// produce an equivalent report.
func (j *ReportJob) Fingerprint() (string, error) {
	return Fingerprint(j.Type, j.Params)
}

// AuditParams decodes the payload of an audit_report job.
func (j *ReportJob) AuditParams() (*AuditReportParams, error) {
	if j.Type != JobTypeAuditReport {
		return nil, fmt.Errorf("job %s is %s, not %s", j.ID, j.Type, JobTypeAuditReport)
	}
	var p AuditReportParams
	if err := json.Unmarshal(j.Params, &p); err != nil {
		return nil, fmt.Errorf("decode audit params: %w", err)
	}
	return &p, nil
}

// OverviewParams decodes the payload of a location_overview job.
func (j *ReportJob) OverviewParams() (*OverviewReportParams, error) {
	if j.Type != JobTypeLocationOverview {
		return nil, fmt.Errorf("job %s is %s, not %s", j.ID, j.Type, JobTypeLocationOverview)
	}
	var p OverviewReportParams
	if err := json.Unmarshal(j.Params, &p); err != nil {
		return nil, fmt.Errorf("decode overview params: %w", err)
	}
	return &p, nil
}

// Address returns the human-readable address the job concerns, for status
// responses. Overview jobs have no street address and return "".
func (j *ReportJob) Address() string {
	if j.Type != JobTypeAuditReport {
		return ""
	}
	p, err := j.AuditParams()
	if err != nil {
		return ""
	}
	return p.Address
}

// =============================================================================
// Audit Report Parameters
// =============================================================================

// CoverPage holds the letterhead fields printed on the first page of an
// audit report. Cover fields are presentation only and are excluded from
// the dedup fingerprint.
type CoverPage struct {
	Owner        string `json:"owner"`
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
}

// AuditReportParams is the immutable payload of an audit_report job.
type AuditReportParams struct {
	Address         string      `json:"address"`
	Notes           string      `json:"notes"`
	Recommendations string      `json:"recommendations"`
	Cover           CoverPage   `json:"cover"`
	DeficiencyOnly  bool        `json:"deficiency_only"`
	IncludeAll      bool        `json:"include_all"`
	AuditIDs        []uuid.UUID `json:"audit_ids"`
}

// Canonicalize normalizes the payload in place so that equivalent
// submissions marshal to identical JSON: surrounding whitespace is trimmed
// and the audit id list is sorted and de-duplicated.
func (p *AuditReportParams) Canonicalize() {
	p.Address = strings.TrimSpace(p.Address)
	p.Notes = strings.TrimSpace(p.Notes)
	p.Recommendations = strings.TrimSpace(p.Recommendations)
	p.Cover.Owner = strings.TrimSpace(p.Cover.Owner)
	p.Cover.Street = strings.TrimSpace(p.Cover.Street)
	p.Cover.City = strings.TrimSpace(p.Cover.City)
	p.Cover.State = strings.TrimSpace(p.Cover.State)
	p.Cover.Zip = strings.TrimSpace(p.Cover.Zip)
	p.Cover.ContactName = strings.TrimSpace(p.Cover.ContactName)
	p.Cover.ContactEmail = strings.TrimSpace(p.Cover.ContactEmail)
	p.AuditIDs = sortedUniqueIDs(p.AuditIDs)
}

// fingerprintInto writes the dedup-relevant fields. Same address + notes +
// recommendations + flags + audit id set means the same report; the cover
// page is deliberately left out.
func (p *AuditReportParams) fingerprintInto(h *fingerprintHasher) {
	h.field(normalizeAddress(p.Address))
	h.field(strings.TrimSpace(p.Notes))
	h.field(strings.TrimSpace(p.Recommendations))
	h.field(fmt.Sprintf("deficiency_only=%t", p.DeficiencyOnly))
	h.field(fmt.Sprintf("include_all=%t", p.IncludeAll))
	for _, id := range sortedUniqueIDs(p.AuditIDs) {
		h.field(id.String())
	}
}

// =============================================================================
// Overview Report Parameters
// =============================================================================

// OverviewReportParams is the immutable payload of a location_overview job.
// Either an explicit RangeStart/RangeEnd pair or a RangePreset must be set;
// presets are resolved to concrete dates at generation time.
type OverviewReportParams struct {
	LocationID  uuid.UUID `json:"location_id"`
	RangeStart  string    `json:"range_start,omitempty"` // YYYY-MM-DD
	RangeEnd    string    `json:"range_end,omitempty"`   // YYYY-MM-DD
	RangePreset string    `json:"range_preset,omitempty"`
}

// Canonicalize normalizes the payload in place.
func (p *OverviewReportParams) Canonicalize() {
	p.RangeStart = strings.TrimSpace(p.RangeStart)
	p.RangeEnd = strings.TrimSpace(p.RangeEnd)
	p.RangePreset = strings.ToLower(strings.TrimSpace(p.RangePreset))
}

func (p *OverviewReportParams) fingerprintInto(h *fingerprintHasher) {
	h.field(p.LocationID.String())
	h.field(strings.TrimSpace(p.RangeStart))
	h.field(strings.TrimSpace(p.RangeEnd))
	h.field(strings.ToLower(strings.TrimSpace(p.RangePreset)))
}

// =============================================================================
// Fingerprint
// =============================================================================

// Fingerprint derives the dedup key for a job type and its canonical
// parameter payload. The result is a hex-encoded SHA-256 over the
// dedup-relevant fields only; it is compared in memory and never stored.
func Fingerprint(t JobType, params json.RawMessage) (string, error) {
	h := newFingerprintHasher(t)

	switch t {
	case JobTypeAuditReport:
		var p AuditReportParams
		if err := json.Unmarshal(params, &p); err != nil {
			return "", fmt.Errorf("decode audit params: %w", err)
		}
		p.fingerprintInto(h)
	case JobTypeLocationOverview:
		var p OverviewReportParams
		if err := json.Unmarshal(params, &p); err != nil {
			return "", fmt.Errorf("decode overview params: %w", err)
		}
		p.fingerprintInto(h)
	default:
		return "", fmt.Errorf("unknown job type: %s", t)
	}

	return h.sum(), nil
}

// fingerprintHasher accumulates length-delimited fields so that adjacent
// values can never collide ("ab"+"c" vs "a"+"bc").
type fingerprintHasher struct {
	h interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
	}
}

func newFingerprintHasher(t JobType) *fingerprintHasher {
	fh := &fingerprintHasher{h: sha256.New()}
	fh.field(string(t))
	return fh
}

func (fh *fingerprintHasher) field(s string) {
	fmt.Fprintf(fh.h, "%d:", len(s))
	fh.h.Write([]byte(s))
}

func (fh *fingerprintHasher) sum() string {
	return hex.EncodeToString(fh.h.Sum(nil))
}

// normalizeAddress folds case and collapses runs of whitespace so that
// trivially reformatted addresses dedup together. Anything deeper is the
// address validator's job at generation time.
func normalizeAddress(addr string) string {
	return strings.Join(strings.Fields(strings.ToLower(addr)), " ")
}

func sortedUniqueIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].String(), out[j].String()) < 0
	})
	uniq := out[:1]
	for _, id := range out[1:] {
		if id != uniq[len(uniq)-1] {
			uniq = append(uniq, id)
		}
	}
	return uniq
}
