package autosave

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/listkeeper/project/internal/app/list"
	"github.com/listkeeper/project/internal/contracts"
)

func newTestService() (*Service, *list.MemoryRepository) {
	repo := list.NewMemoryRepository()
	svc := NewService(repo)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	draftSeq, itemSeq := 0, 0
	svc.NewID = func() string {
		draftSeq++
		return fmt.Sprintf("draft-%d", draftSeq)
	}
	svc.NewItemID = func() string {
		itemSeq++
		return fmt.Sprintf("item-%d", itemSeq)
	}
	return svc, repo
}

func payload(title string, names ...string) contracts.DraftPayload {
	items := make([]contracts.ListItemDTO, 0, len(names))
	for _, name := range names {
		items = append(items, contracts.ListItemDTO{Kind: contracts.ItemKindManual, Name: name, Qty: 1})
	}
	return contracts.DraftPayload{Title: title, Items: items}
}

func TestPut_CreatesDraftOnFirstUse(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	summary, err := svc.Put(ctx, "user-1", payload("Groceries", "Bread"))
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if summary.ID != "draft-1" || summary.Status != string(list.StatusDraft) {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	snapshot, err := svc.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if snapshot == nil || snapshot.Title != "Groceries" || len(snapshot.Items) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.Items[0].ID == "" {
		t.Fatal("uncommitted item must receive an id on the server")
	}
}

func TestPut_UpsertsSameDraft(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, _ := svc.Put(ctx, "user-1", payload("v1", "Bread"))
	second, err := svc.Put(ctx, "user-1", payload("v2", "Bread", "Milk"))
	if err != nil {
		t.Fatalf("second Put returned error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("Put must target the same draft, got %s then %s", first.ID, second.ID)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatal("updatedAt must advance on every Put")
	}

	snapshot, _ := svc.Get(ctx, "user-1")
	if snapshot.Title != "v2" || len(snapshot.Items) != 2 {
		t.Fatalf("content not replaced: %+v", snapshot)
	}
}

func TestPut_CatalogItemsGetCompositeID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p := contracts.DraftPayload{Items: []contracts.ListItemDTO{{
		Kind:            contracts.ItemKindCatalog,
		Name:            "Milk",
		Qty:             1,
		SourceProductID: "prod-1",
	}}}
	summary, err := svc.Put(ctx, "user-1", p)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	snapshot, _ := svc.Get(ctx, "user-1")
	want := list.CatalogItemID(summary.ID, "prod-1")
	if snapshot.Items[0].ID != want {
		t.Fatalf("catalog item id = %q, want %q", snapshot.Items[0].ID, want)
	}
}

func TestGet_NoDraftReturnsNil(t *testing.T) {
	svc, _ := newTestService()
	snapshot, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if snapshot != nil {
		t.Fatalf("expected nil snapshot, got %+v", snapshot)
	}
}

func TestGet_IsolatedPerUser(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, _ = svc.Put(ctx, "user-1", payload("Mine", "Bread"))

	snapshot, err := svc.Get(ctx, "user-2")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if snapshot != nil {
		t.Fatal("another user's draft must not be visible")
	}
}

func TestDelete_RemovesDraft(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, _ = svc.Put(ctx, "user-1", payload("Groceries", "Bread"))

	if err := svc.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	snapshot, _ := svc.Get(ctx, "user-1")
	if snapshot != nil {
		t.Fatalf("expected draft gone, got %+v", snapshot)
	}
}

func TestDelete_NoDraftIsNoop(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.Delete(context.Background(), "user-1"); err != nil {
		t.Fatalf("Delete without a draft must be a no-op, got %v", err)
	}
}

func TestReset_ClearsKeeperAndDeletesSurplus(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	// Two autosave drafts simulate a double-creation race.
	keeper, _ := svc.Put(ctx, "user-1", payload("Keeper", "Bread"))
	surplus := list.List{
		ID:              "draft-stray",
		OwnerUserID:     "user-1",
		Title:           "Stray",
		Status:          list.StatusDraft,
		IsAutosaveDraft: true,
		UpdatedAt:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	_ = repo.Save(ctx, surplus)

	if err := svc.Reset(ctx, "user-1", keeper.ID); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	drafts, _ := repo.FindDrafts(ctx, "user-1", true)
	if len(drafts) != 1 {
		t.Fatalf("expected exactly one surviving draft, got %d", len(drafts))
	}
	got := drafts[0]
	if got.ID != keeper.ID {
		t.Fatalf("wrong keeper survived: %s", got.ID)
	}
	if len(got.Items) != 0 || got.IsEditing || got.EditingTargetListID != "" {
		t.Fatalf("keeper not cleared: %+v", got)
	}
}

func TestReset_LeavesOrdinaryDraftsAlone(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	ordinary := list.List{
		ID:          "plain-draft",
		OwnerUserID: "user-1",
		Title:       "Plain",
		Status:      list.StatusDraft,
		UpdatedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	_ = repo.Save(ctx, ordinary)
	_, _ = svc.Put(ctx, "user-1", payload("Autosave", "Bread"))

	if err := svc.Reset(ctx, "user-1", ""); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if _, err := repo.FindByID(ctx, "plain-draft"); err != nil {
		t.Fatalf("ordinary draft must survive a reset: %v", err)
	}
}

func TestReset_Idempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, _ = svc.Put(ctx, "user-1", payload("Groceries", "Bread"))

	if err := svc.Reset(ctx, "user-1", ""); err != nil {
		t.Fatalf("first Reset returned error: %v", err)
	}
	if err := svc.Reset(ctx, "user-1", ""); err != nil {
		t.Fatalf("second Reset returned error: %v", err)
	}
	if err := svc.Reset(ctx, "nobody", ""); err != nil {
		t.Fatalf("Reset without drafts must be a no-op, got %v", err)
	}
}
