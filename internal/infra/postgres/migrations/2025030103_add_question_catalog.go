package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2025030103_add_question_catalog.sql
var addQuestionCatalogSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			for _, stmt := range []string{
				addQuestionCatalogSQL,
				`ALTER TABLE questions ADD COLUMN IF NOT EXISTS difficulty TEXT NOT NULL DEFAULT ''`,
				`ALTER TABLE questions ADD CONSTRAINT questions_weight_positive CHECK (weight > 0)`,
				`CREATE INDEX IF NOT EXISTS questions_catalog_idx ON questions (mode, difficulty, id)`,
			} {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			for _, stmt := range []string{
				`DROP INDEX IF EXISTS questions_catalog_idx`,
				`ALTER TABLE questions DROP CONSTRAINT IF EXISTS questions_weight_positive`,
				`ALTER TABLE questions DROP COLUMN IF EXISTS difficulty`,
				`ALTER TABLE questions DROP COLUMN IF EXISTS mode`,
			} {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
