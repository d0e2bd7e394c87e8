// Package migrations embeds the FlashCue SQL schema into the binary.
package migrations

import (
	"context"
	"embed"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/database"
)

//go:embed *.sql
var FS embed.FS

// Dir is the directory within FS holding the migration files.
const Dir = "."

// Apply runs every pending migration against db.
func Apply(ctx context.Context, db *database.DB) error {
	return db.Migrate(ctx, FS, Dir)
}
