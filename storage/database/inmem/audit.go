package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/registrar/core/audit"
)

type auditRepository struct {
	db *auditTable
}

var _ audit.Repository = (*auditRepository)(nil)

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db.audit}
}

func (repo *auditRepository) CreateEntry(_ context.Context, e audit.Entry) (audit.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.rows = append(repo.db.rows, e)
	return e, nil
}

func (repo *auditRepository) FilterEntries(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]audit.Entry, 0)
	for i := len(repo.db.rows) - 1; i >= 0; i-- {
		if e := repo.db.rows[i]; matches(e, f) {
			entries = append(entries, e)
		}
	}

	// newest first
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}
	return entries, nil
}

func matches(e audit.Entry, f audit.Filter) bool {
	switch {
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.SubjectID != "" && e.SubjectID != f.SubjectID:
		return false
	case f.SchoolID != "" && e.SchoolID != f.SchoolID:
		return false
	case !f.Since.IsZero() && e.CreatedAt.Before(f.Since):
		return false
	}
	return true
}
