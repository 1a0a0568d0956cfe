package archive

import "context"

// migrate creates the necessary database tables
func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id BIGSERIAL PRIMARY KEY,
		project TEXT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_regions (
		snapshot_id BIGINT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		run INTEGER NOT NULL,
		start_offset BIGINT NOT NULL,
		end_offset BIGINT NOT NULL,
		labels INTEGER[] NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_project ON snapshots(project, generated_at);
	CREATE INDEX IF NOT EXISTS idx_snapshot_regions_snapshot ON snapshot_regions(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_snapshot_regions_labels ON snapshot_regions USING GIN(labels);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}
