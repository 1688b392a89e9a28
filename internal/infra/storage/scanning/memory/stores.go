// Package memory provides in-memory implementations of the scanning storage
// ports. They mirror the PostgreSQL stores closely enough (not-found errors,
// atomic counter semantics, ordering) to back the application-layer tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/facetrace/internal/domain/scanning"
)

var _ scanning.JobRepository = (*JobStore)(nil)

// JobStore is a thread-safe in-memory scanning.JobRepository.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*scanning.Job
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*scanning.Job)}
}

func (s *JobStore) CreateJob(ctx context.Context, job *scanning.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID()] = cloneJob(job)
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*scanning.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, scanning.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *JobStore) UpdateJob(ctx context.Context, job *scanning.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.JobID()]
	if !ok {
		return scanning.ErrJobNotFound
	}
	updated := cloneJob(job)
	// Preserve counter bumps applied concurrently through
	// IncrementImagesScanned; the aggregate snapshot may be stale.
	if stored.TotalImagesScanned() > updated.TotalImagesScanned() {
		updated = reconstructWithImagesScanned(updated, stored.TotalImagesScanned())
	}
	s.jobs[job.JobID()] = updated
	return nil
}

func (s *JobStore) IncrementImagesScanned(ctx context.Context, jobID uuid.UUID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scanning.ErrJobNotFound
	}
	s.jobs[jobID] = reconstructWithImagesScanned(job, job.TotalImagesScanned()+delta)
	return nil
}

func cloneJob(job *scanning.Job) *scanning.Job {
	tl := job.Timeline()
	return scanning.ReconstructJob(
		job.JobID(),
		job.UserID(),
		job.ScanType(),
		job.ConfidenceThreshold(),
		job.Status(),
		job.Progress(),
		job.TotalImagesScanned(),
		job.TotalMatchesFound(),
		job.ErrorMessage(),
		scanning.ReconstructTimeline(tl.CreatedAt(), tl.StartedAt(), tl.CompletedAt(), tl.LastUpdate()),
	)
}

func reconstructWithImagesScanned(job *scanning.Job, total int64) *scanning.Job {
	tl := job.Timeline()
	return scanning.ReconstructJob(
		job.JobID(),
		job.UserID(),
		job.ScanType(),
		job.ConfidenceThreshold(),
		job.Status(),
		job.Progress(),
		total,
		job.TotalMatchesFound(),
		job.ErrorMessage(),
		scanning.ReconstructTimeline(tl.CreatedAt(), tl.StartedAt(), tl.CompletedAt(), tl.LastUpdate()),
	)
}

var _ scanning.ResultRepository = (*ResultStore)(nil)

// ResultStore is a thread-safe in-memory scanning.ResultRepository.
type ResultStore struct {
	mu      sync.RWMutex
	results map[uuid.UUID][]*scanning.Result

	// CreateErr, when set, is returned by every CreateResult call. Tests use
	// it to simulate persistence failures.
	CreateErr error
}

// NewResultStore creates an empty in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[uuid.UUID][]*scanning.Result)}
}

func (s *ResultStore) CreateResult(ctx context.Context, result *scanning.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.results[result.JobID()] = append(s.results[result.JobID()], result)
	return nil
}

func (s *ResultStore) CountByJob(ctx context.Context, jobID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.results[jobID])), nil
}

func (s *ResultStore) ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]*scanning.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*scanning.Result, len(s.results[jobID]))
	copy(all, s.results[jobID])
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Confidence() > all[j].Confidence()
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *ResultStore) StatsByJob(ctx context.Context, jobID uuid.UUID) (*scanning.ResultStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := scanning.NewResultStats()
	for _, r := range s.results[jobID] {
		stats.Add(r)
	}
	return stats, nil
}

var _ scanning.ReferenceRepository = (*ReferenceStore)(nil)

// ReferenceStore is an in-memory scanning.ReferenceRepository seeded by tests.
type ReferenceStore struct {
	mu    sync.RWMutex
	faces map[uuid.UUID][]scanning.ReferenceFace
}

// NewReferenceStore creates an empty in-memory reference face store.
func NewReferenceStore() *ReferenceStore {
	return &ReferenceStore{faces: make(map[uuid.UUID][]scanning.ReferenceFace)}
}

// Add seeds a reference face for its owning user.
func (s *ReferenceStore) Add(face scanning.ReferenceFace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces[face.UserID()] = append(s.faces[face.UserID()], face)
}

func (s *ReferenceStore) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]scanning.ReferenceFace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []scanning.ReferenceFace
	for _, f := range s.faces[userID] {
		if f.IsActive() {
			active = append(active, f)
		}
	}
	return active, nil
}

var _ scanning.SocialAccountRepository = (*SocialAccountStore)(nil)

// SocialAccountStore is an in-memory scanning.SocialAccountRepository seeded
// by tests.
type SocialAccountStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID][]scanning.SocialAccount
	media    map[uuid.UUID][]scanning.MediaItem
}

// NewSocialAccountStore creates an empty in-memory social account store.
func NewSocialAccountStore() *SocialAccountStore {
	return &SocialAccountStore{
		accounts: make(map[uuid.UUID][]scanning.SocialAccount),
		media:    make(map[uuid.UUID][]scanning.MediaItem),
	}
}

// AddAccount seeds a social account for its owning user.
func (s *SocialAccountStore) AddAccount(account scanning.SocialAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.UserID()] = append(s.accounts[account.UserID()], account)
}

// AddMedia seeds a synced media item for its owning account.
func (s *SocialAccountStore) AddMedia(item scanning.MediaItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[item.AccountID()] = append(s.media[item.AccountID()], item)
}

func (s *SocialAccountStore) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]scanning.SocialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []scanning.SocialAccount
	for _, a := range s.accounts[userID] {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	return active, nil
}

func (s *SocialAccountStore) ListSyncedMedia(ctx context.Context, accountID uuid.UUID) ([]scanning.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]scanning.MediaItem, len(s.media[accountID]))
	copy(items, s.media[accountID])
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PostedAt().After(items[j].PostedAt())
	})
	return items, nil
}

var _ scanning.TokenStore = (*TokenStore)(nil)

// TokenStore is a thread-safe in-memory scanning.TokenStore with lazy expiry.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
	now    func() time.Time
}

type tokenEntry struct {
	value     string
	expiresAt time.Time
}

// NewTokenStore creates an empty in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]tokenEntry), now: time.Now}
}

// SetClock overrides the store's clock for expiry tests.
func (s *TokenStore) SetClock(now func() time.Time) { s.now = now }

func (s *TokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = tokenEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *TokenStore) GetAndDelete(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[key]
	if !ok {
		return "", scanning.ErrTokenNotFound
	}
	delete(s.tokens, key)
	if !entry.expiresAt.After(s.now()) {
		return "", scanning.ErrTokenNotFound
	}
	return entry.value, nil
}
