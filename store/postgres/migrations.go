package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the PostgreSQL state table.
var Migrations = migrate.NewGroup("coinledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_coin_state",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS coin_state (
    state_key   TEXT COLLATE "C" PRIMARY KEY,
    state_value BYTEA NOT NULL
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
    reads     JSONB NOT NULL DEFAULT '[]',
    ranges    JSONB NOT NULL DEFAULT '[]',
    writes    JSONB NOT NULL DEFAULT '[]'
);

CREATE OR REPLACE FUNCTION coin_state_apply_commit() RETURNS trigger AS $$
DECLARE
    r jsonb;
    g jsonb;
    w jsonb;
    n bigint;
BEGIN
    PERFORM pg_advisory_xact_lock(hashtext('coin_state'));

    FOR r IN SELECT * FROM jsonb_array_elements(NEW.reads) LOOP
        IF (r->>'found')::boolean THEN
            PERFORM 1 FROM coin_state
            WHERE state_key = r->>'key' AND state_value = decode(r->>'value', 'hex');
            IF NOT FOUND THEN
                RAISE EXCEPTION 'coin_state: read conflict' USING ERRCODE = 'serialization_failure';
            END IF;
        ELSE
            PERFORM 1 FROM coin_state WHERE state_key = r->>'key';
            IF FOUND THEN
                RAISE EXCEPTION 'coin_state: read conflict' USING ERRCODE = 'serialization_failure';
            END IF;
        END IF;
    END LOOP;

    FOR g IN SELECT * FROM jsonb_array_elements(NEW.ranges) LOOP
        SELECT count(*) INTO n FROM coin_state
        WHERE left(state_key, length(g->>'prefix')) = g->>'prefix';
        IF n <> jsonb_array_length(g->'entries') THEN
            RAISE EXCEPTION 'coin_state: read conflict' USING ERRCODE = 'serialization_failure';
        END IF;

        PERFORM 1 FROM jsonb_array_elements(g->'entries') e
        WHERE NOT EXISTS (
            SELECT 1 FROM coin_state s
            WHERE s.state_key = e->>'key' AND s.state_value = decode(e->>'value', 'hex')
        );
        IF FOUND THEN
            RAISE EXCEPTION 'coin_state: read conflict' USING ERRCODE = 'serialization_failure';
        END IF;
    END LOOP;

    FOR w IN SELECT * FROM jsonb_array_elements(NEW.writes) LOOP
        IF (w->>'delete')::boolean THEN
            DELETE FROM coin_state WHERE state_key = w->>'key';
        ELSE
            INSERT INTO coin_state (state_key, state_value)
            VALUES (w->>'key', decode(w->>'value', 'hex'))
            ON CONFLICT (state_key) DO UPDATE SET state_value = EXCLUDED.state_value;
        END IF;
    END LOOP;

    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS coin_state_apply_commit ON coin_state_commits;
CREATE TRIGGER coin_state_apply_commit
    BEFORE INSERT ON coin_state_commits
    FOR EACH ROW EXECUTE FUNCTION coin_state_apply_commit();
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS coin_state_commits;
DROP FUNCTION IF EXISTS coin_state_apply_commit();
`)
				return err
			},
		},
	)
}
