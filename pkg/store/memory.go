package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/models"
)

// maxMemoryQueryLog bounds the in-memory query log; the oldest entries are
// dropped once it fills.
const maxMemoryQueryLog = 1000

// MemoryStore is the in-process Store used when no metadata database is
// configured, and in tests. Reads resolve to absence unless seeded; the
// query log is kept in a bounded slice.
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]*models.Tenant
	schemas  map[string]*models.SchemaSnapshot
	tables   map[string][]*models.TableMetadata
	terms    map[string][]*models.BusinessTerm
	queryLog []*models.QueryRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]*models.Tenant),
		schemas: make(map[string]*models.SchemaSnapshot),
		tables:  make(map[string][]*models.TableMetadata),
		terms:   make(map[string][]*models.BusinessTerm),
	}
}

func (s *MemoryStore) GetTenant(_ context.Context, tenantID string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, apperrors.ErrTenantNotFound
	}
	copied := *t
	return &copied, nil
}

// PutTenant seeds a tenant record.
func (s *MemoryStore) PutTenant(t *models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *MemoryStore) GetCachedSchema(_ context.Context, tenantID string) (*models.SchemaSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemas[tenantID], nil
}

func (s *MemoryStore) SaveSchema(_ context.Context, tenantID string, snapshot *models.SchemaSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[tenantID] = snapshot
	return nil
}

func (s *MemoryStore) ListTableMetadata(_ context.Context, tenantID string) ([]*models.TableMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[tenantID], nil
}

// PutTableMetadata seeds curated table overlays.
func (s *MemoryStore) PutTableMetadata(tenantID string, tables []*models.TableMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[tenantID] = tables
}

func (s *MemoryStore) ListBusinessTerms(_ context.Context, tenantID string) ([]*models.BusinessTerm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terms[tenantID], nil
}

// PutBusinessTerms seeds glossary entries.
func (s *MemoryStore) PutBusinessTerms(tenantID string, terms []*models.BusinessTerm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms[tenantID] = terms
}

func (s *MemoryStore) RecordQuery(_ context.Context, record *models.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.queryLog = append(s.queryLog, record)
	if len(s.queryLog) > maxMemoryQueryLog {
		s.queryLog = s.queryLog[len(s.queryLog)-maxMemoryQueryLog:]
	}
	return nil
}

func (s *MemoryStore) CountQueriesSince(_ context.Context, tenantID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.queryLog {
		if r.TenantID == tenantID && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// QueryLog returns a copy of the recorded entries, oldest first.
func (s *MemoryStore) QueryLog() []*models.QueryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.QueryRecord, len(s.queryLog))
	copy(out, s.queryLog)
	return out
}

func (s *MemoryStore) Close() {}
