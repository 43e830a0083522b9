package testsupport

import (
	"context"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/production"
	"reelforge/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// ApprovedStrategy inserts and approves a strategy with the given scene prompts.
func ApprovedStrategy(t testing.TB, st *store.Store, title, script string, prompts ...string) *production.Strategy {
	t.Helper()

	ctx := context.Background()
	created, err := st.CreateStrategy(ctx, production.Strategy{
		Title:        title,
		Script:       script,
		ScenePrompts: prompts,
	})
	if err != nil {
		t.Fatalf("store.CreateStrategy: %v", err)
	}
	if err := st.ApproveStrategy(ctx, created.ID); err != nil {
		t.Fatalf("store.ApproveStrategy: %v", err)
	}
	created.Status = production.StrategyApproved
	return created
}
