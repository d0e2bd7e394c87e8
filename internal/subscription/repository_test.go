package subscription

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/database"
	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/migrations"
)

// openTestDB opens a migrated SQLite database with targets "s1" and "s2".
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "flashcue.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("migrations.Apply() error = %v", err)
	}
	for _, id := range []string{"s1", "s2"} {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO targets (id, name, created_at, updated_at) VALUES (?, ?, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`,
			id, "Studio "+id,
		); err != nil {
			t.Fatalf("seeding target: %v", err)
		}
	}
	return db.DB
}

func TestSQLiteRepository_CreateAndOrder(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	inputs := []Condition{
		{ID: "c1", SessionID: "s1", Category: platform.CategoryGiftSubscription, Scene: "Main", Element: "Hype",
			Fields: map[string]any{"quantity_threshold": 5, "allow_anonymous": false}},
		{ID: "c2", SessionID: "s1", Category: platform.CategoryChatMessage, Scene: "Main", Element: "Intro",
			Fields: map[string]any{"command_text": "!intro"}},
		{ID: "c3", SessionID: "s1", Category: platform.CategoryGiftSubscription, Scene: "Main", Element: "Big",
			Fields: map[string]any{"quantity_threshold": 50, "allow_anonymous": true}},
		{ID: "c4", SessionID: "s2", Category: platform.CategoryGiftSubscription, Scene: "Alt", Element: "Hype",
			Fields: map[string]any{"quantity_threshold": 1, "allow_anonymous": true}},
	}
	var lastSeq int64
	for i := range inputs {
		if err := repo.Create(ctx, &inputs[i]); err != nil {
			t.Fatalf("Create(%s) error = %v", inputs[i].ID, err)
		}
		if inputs[i].Seq <= lastSeq {
			t.Errorf("Seq %d not increasing past %d", inputs[i].Seq, lastSeq)
		}
		lastSeq = inputs[i].Seq
	}

	got, err := repo.ListBySessionCategory(ctx, "s1", platform.CategoryGiftSubscription)
	if err != nil {
		t.Fatalf("ListBySessionCategory() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c3" {
		t.Fatalf("ListBySessionCategory() = %+v", got)
	}

	// Fields survive the JSON round trip in a form the accessors accept.
	threshold, err := got[0].Int(FieldQuantityThreshold)
	if err != nil || threshold != 5 {
		t.Errorf("Int(quantity_threshold) = %d, %v", threshold, err)
	}

	all, err := repo.List(ctx)
	if err != nil || len(all) != 4 {
		t.Errorf("List() = %d, %v", len(all), err)
	}
}

func TestSQLiteRepository_UnknownSession(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))

	err := repo.Create(context.Background(), &Condition{
		ID: "c1", SessionID: "ghost", Category: platform.CategoryChatMessage, Scene: "s", Element: "e",
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Create() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSQLiteRepository_GetAndDelete(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	c := &Condition{ID: "c1", SessionID: "s1", Category: platform.CategoryChatMessage, Scene: "Main", Element: "Intro",
		Fields: map[string]any{"command_text": "!intro"}}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if cmd, _ := got.String(FieldCommandText); cmd != "!intro" || got.Category != platform.CategoryChatMessage {
		t.Errorf("GetByID() = %+v", got)
	}

	if err := repo.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "c1"); !errors.Is(err, ErrConditionNotFound) {
		t.Errorf("GetByID() after delete error = %v", err)
	}
	if err := repo.Delete(ctx, "c1"); !errors.Is(err, ErrConditionNotFound) {
		t.Errorf("Delete() missing error = %v", err)
	}
}

func TestSQLiteRepository_CascadeOnTargetDelete(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	_ = repo.Create(ctx, &Condition{ID: "c1", SessionID: "s2", Category: platform.CategoryChatMessage, Scene: "m", Element: "e"})
	if _, err := db.ExecContext(ctx, `DELETE FROM targets WHERE id = 's2'`); err != nil {
		t.Fatalf("deleting target: %v", err)
	}
	if _, err := repo.GetByID(ctx, "c1"); !errors.Is(err, ErrConditionNotFound) {
		t.Errorf("condition survived target delete: %v", err)
	}
}
