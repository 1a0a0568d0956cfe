package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/imabhichow/duvet/pkg/report"
)

// HistoryPoint is one archived snapshot's footprint for a label.
type HistoryPoint struct {
	Snapshot     int64
	GeneratedAt  time.Time
	Regions      int64
	CoveredBytes int64
}

// Archive stores a report snapshot: one snapshots row plus one
// snapshot_regions row per region, batched. Returns the snapshot id.
func (s *PGStore) Archive(ctx context.Context, rep *report.Report) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO snapshots (project, generated_at) VALUES ($1, $2) RETURNING id`,
		rep.Project, rep.GeneratedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, f := range rep.Files {
		for _, r := range f.Regions {
			labels := make([]int32, len(r.Labels))
			for i, l := range r.Labels {
				labels[i] = int32(l.ID)
			}
			batch.Queue(
				`INSERT INTO snapshot_regions (snapshot_id, file_path, run, start_offset, end_offset, labels)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				id, f.Path, int32(f.Run), int64(r.Start), int64(r.End), labels,
			)
		}
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, fmt.Errorf("failed to insert region: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit archive: %w", err)
	}
	return id, nil
}

// History returns, per archived snapshot of the project, how many
// regions carried the label and how many bytes they covered, oldest
// first.
func (s *PGStore) History(ctx context.Context, project string, label uint32) ([]HistoryPoint, error) {
	query := `
		SELECT s.id, s.generated_at, COUNT(*), COALESCE(SUM(r.end_offset - r.start_offset), 0)
		FROM snapshots s
		JOIN snapshot_regions r ON r.snapshot_id = s.id
		WHERE s.project = $1 AND $2 = ANY(r.labels)
		GROUP BY s.id, s.generated_at
		ORDER BY s.generated_at, s.id
	`

	rows, err := s.pool.Query(ctx, query, project, int32(label))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var points []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.Snapshot, &p.GeneratedAt, &p.Regions, &p.CoveredBytes); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return points, nil
}
