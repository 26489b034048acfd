package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the SQLite state table.
// TEXT keys compare with the default BINARY collation, which is byte order.
var Migrations = migrate.NewGroup("coinledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_coin_state",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS coin_state (
    state_key   TEXT PRIMARY KEY,
    state_value TEXT NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS coin_state`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_coin_state_commits",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS coin_state_commits (
    commit_id TEXT PRIMARY KEY,
    reads     TEXT NOT NULL DEFAULT '[]',
    ranges    TEXT NOT NULL DEFAULT '[]',
    writes    TEXT NOT NULL DEFAULT '[]'
);

CREATE TRIGGER IF NOT EXISTS coin_state_apply_commit
AFTER INSERT ON coin_state_commits
BEGIN
    SELECT RAISE(ABORT, 'coin_state: read conflict')
    WHERE EXISTS (
        SELECT 1 FROM json_each(NEW.reads) r
        WHERE CASE json_extract(r.value, '$.found')
            WHEN 1 THEN NOT EXISTS (
                SELECT 1 FROM coin_state s
                WHERE s.state_key = json_extract(r.value, '$.key')
                  AND s.state_value = json_extract(r.value, '$.value'))
            ELSE EXISTS (
                SELECT 1 FROM coin_state s
                WHERE s.state_key = json_extract(r.value, '$.key'))
        END
    );

    SELECT RAISE(ABORT, 'coin_state: read conflict')
    WHERE EXISTS (
        SELECT 1 FROM json_each(NEW.ranges) g
        WHERE (
            SELECT count(*) FROM coin_state s
            WHERE substr(s.state_key, 1, length(json_extract(g.value, '$.prefix'))) = json_extract(g.value, '$.prefix')
        ) <> json_array_length(g.value, '$.entries')
        OR EXISTS (
            SELECT 1 FROM json_each(g.value, '$.entries') e
            WHERE NOT EXISTS (
                SELECT 1 FROM coin_state s
                WHERE s.state_key = json_extract(e.value, '$.key')
                  AND s.state_value = json_extract(e.value, '$.value'))
        )
    );

    DELETE FROM coin_state
    WHERE state_key IN (
        SELECT json_extract(w.value, '$.key') FROM json_each(NEW.writes) w
        WHERE json_extract(w.value, '$.delete') = 1
    );

    INSERT OR REPLACE INTO coin_state (state_key, state_value)
    SELECT json_extract(w.value, '$.key'), json_extract(w.value, '$.value')
    FROM json_each(NEW.writes) w
    WHERE json_extract(w.value, '$.delete') = 0;

    DELETE FROM coin_state_commits WHERE commit_id = NEW.commit_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS coin_state_apply_commit;
DROP TABLE IF EXISTS coin_state_commits;
`)
				return err
			},
		},
	)
}
