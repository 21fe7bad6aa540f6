package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Put(ctx context.Context, r Run) error {
	sj, err := json.Marshal(r.Semester)
	if err != nil {
		return fmt.Errorf("encode semester: %w", err)
	}
	sum := r.Summary()
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (id,source,layout,created_by,blob_key,students,subjects,rejected,semester_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET blob_key=EXCLUDED.blob_key, semester_json=EXCLUDED.semester_json,
			students=EXCLUDED.students, subjects=EXCLUDED.subjects, rejected=EXCLUDED.rejected`,
		r.ID, r.Source, r.Layout, r.CreatedBy, r.BlobKey, sum.Students, sum.Subjects, sum.Rejected,
		string(sj), r.CreatedAt.UnixMilli())
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,source,layout,created_by,blob_key,semester_json,created_at FROM runs WHERE id=$1`, id)
	var r Run
	var sj string
	var created int64
	if err := row.Scan(&r.ID, &r.Source, &r.Layout, &r.CreatedBy, &r.BlobKey, &sj, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(sj), &r.Semester); err != nil {
		return Run{}, fmt.Errorf("decode semester %s: %w", id, err)
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	return r, nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,source,layout,created_by,students,subjects,rejected,created_at FROM runs
		WHERE ($1 = '' OR created_by = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, opts.CreatedBy, opts.limit(), opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RunSummary{}
	for rows.Next() {
		var rs RunSummary
		var created int64
		if err := rows.Scan(&rs.ID, &rs.Source, &rs.Layout, &rs.CreatedBy, &rs.Students, &rs.Subjects, &rs.Rejected, &created); err != nil {
			return nil, err
		}
		rs.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}
