package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/registrar/core/audit"
)

const auditTable = "audit_entries"

var (
	psql         = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	auditColumns = []string{"id", "action", "subject_id", "school_id", "actor_id", "detail", "created_at"}
)

// auditRow mirrors the audit_entries table; optional columns are nullable.
type auditRow struct {
	ID        string      `db:"id"`
	Action    string      `db:"action"`
	SubjectID string      `db:"subject_id"`
	SchoolID  null.String `db:"school_id"`
	ActorID   null.String `db:"actor_id"`
	Detail    null.String `db:"detail"`
	CreatedAt time.Time   `db:"created_at"`
}

func (r auditRow) entry() audit.Entry {
	return audit.Entry{
		ID:        r.ID,
		Action:    r.Action,
		SubjectID: r.SubjectID,
		SchoolID:  r.SchoolID.String,
		ActorID:   r.ActorID.String,
		Detail:    r.Detail.String,
		CreatedAt: r.CreatedAt,
	}
}

func optional(s string) null.String {
	return null.NewString(s, s != "")
}

type auditRepository struct {
	db *sqlx.DB
}

var _ audit.Repository = (*auditRepository)(nil)

func NewAuditRepository(db *sqlx.DB) audit.Repository {
	return &auditRepository{db: db}
}

func insertEntryQuery(e audit.Entry) (string, []interface{}, error) {
	return psql.Insert(auditTable).
		Columns(auditColumns...).
		Values(e.ID, e.Action, e.SubjectID, optional(e.SchoolID), optional(e.ActorID), optional(e.Detail), e.CreatedAt).
		ToSql()
}

func filterEntriesQuery(f audit.Filter) (string, []interface{}, error) {
	q := psql.Select(auditColumns...).From(auditTable)
	if f.Action != "" {
		q = q.Where(sq.Eq{"action": f.Action})
	}
	if f.SubjectID != "" {
		q = q.Where(sq.Eq{"subject_id": f.SubjectID})
	}
	if f.SchoolID != "" {
		q = q.Where(sq.Eq{"school_id": f.SchoolID})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": f.Since})
	}
	q = q.OrderBy("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q.ToSql()
}

func (repo *auditRepository) CreateEntry(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	query, args, err := insertEntryQuery(e)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "building insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return e, nil
}

func (repo *auditRepository) FilterEntries(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query, args, err := filterEntriesQuery(f)
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}

	var rows []auditRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}
