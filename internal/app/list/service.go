package list

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nuid"

	"github.com/listkeeper/project/internal/app/catalog"
	"github.com/listkeeper/project/internal/contracts"
	"github.com/listkeeper/project/internal/platform/metrics"
)

// Service owns the status state machine and the item mutation rules.
// Ownership is checked on every operation; not-found is checked before
// forbidden so a foreign list id does not leak existence.
type Service struct {
	Repo      Repository
	Catalog   catalog.Client
	Now       func() time.Time
	NewID     func() string
	NewItemID func() string
}

func NewService(repo Repository, catalogClient catalog.Client) *Service {
	return &Service{
		Repo:      repo,
		Catalog:   catalogClient,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     nuid.Next,
		NewItemID: uuid.NewString,
	}
}

// ItemPatch carries the mutable item fields; nil means leave unchanged.
type ItemPatch struct {
	Name    *string
	Qty     *int
	Checked *bool
	Note    *string
}

// ReuseResult is the draft produced by reusing a completed list.
type ReuseResult struct {
	Draft contracts.ListSummary   `json:"draft"`
	Items []contracts.ListItemDTO `json:"items"`
}

func (s *Service) load(ctx context.Context, listID, requesterUserID string) (List, error) {
	l, err := s.Repo.FindByID(ctx, listID)
	if err != nil {
		return List{}, err
	}
	if l.OwnerUserID != requesterUserID {
		return List{}, ErrListForbidden
	}
	return l, nil
}

func (s *Service) Create(ctx context.Context, ownerUserID, title string) (contracts.ListSummary, error) {
	now := s.Now()
	l := List{
		ID:          s.NewID(),
		OwnerUserID: ownerUserID,
		Title:       title,
		Status:      StatusDraft,
		Items:       []Item{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.Normalize()
	if err := s.Repo.Save(ctx, l); err != nil {
		return contracts.ListSummary{}, err
	}
	return l.Summary(), nil
}

func (s *Service) Lists(ctx context.Context, ownerUserID string, status Status) ([]contracts.ListSummary, error) {
	lists, err := s.Repo.FindByOwner(ctx, ownerUserID, status)
	if err != nil {
		return nil, err
	}
	out := make([]contracts.ListSummary, 0, len(lists))
	for _, l := range lists {
		out = append(out, l.Summary())
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, listID, requesterUserID string) (List, error) {
	return s.load(ctx, listID, requesterUserID)
}

// UpdateStatus drives the DRAFT → ACTIVE → COMPLETED machine. The whole
// update commits in one save or not at all.
func (s *Service) UpdateStatus(ctx context.Context, listID, requesterUserID string, target Status, checkedItemIDs []string) (contracts.ListSummary, error) {
	l, err := s.load(ctx, listID, requesterUserID)
	if err != nil {
		return contracts.ListSummary{}, err
	}
	if !transitionAllowed(l.Status, target) {
		return contracts.ListSummary{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, target)
	}

	now := s.Now()
	switch target {
	case StatusActive:
		if len(l.Items) == 0 {
			return contracts.ListSummary{}, fmt.Errorf("%w: cannot activate an empty list", ErrInvalidTransition)
		}
		l.ActivatedAt = &now
	case StatusCompleted:
		// Checked state is reconciled against what was actually bought,
		// not what was ticked while shopping.
		checked := make(map[string]bool, len(checkedItemIDs))
		for _, id := range checkedItemIDs {
			checked[id] = true
		}
		for i := range l.Items {
			l.Items[i].Checked = checked[l.Items[i].ID]
			l.Items[i].UpdatedAt = now
		}
	}

	l.Status = target
	l.UpdatedAt = now
	l.Normalize()
	if err := s.Repo.Save(ctx, l); err != nil {
		return contracts.ListSummary{}, err
	}
	metrics.StatusTransitions.WithLabelValues(string(target)).Inc()
	return l.Summary(), nil
}

// Reuse copies a completed list back into a draft. When the owner holds
// exactly one draft it is overwritten in place, id preserved; otherwise a
// fresh draft is created.
func (s *Service) Reuse(ctx context.Context, listID, requesterUserID string) (ReuseResult, error) {
	src, err := s.load(ctx, listID, requesterUserID)
	if err != nil {
		return ReuseResult{}, err
	}
	if src.Status != StatusCompleted {
		return ReuseResult{}, fmt.Errorf("%w: only completed lists can be reused", ErrInvalidTransition)
	}

	drafts, err := s.Repo.FindDrafts(ctx, requesterUserID, false)
	if err != nil {
		return ReuseResult{}, err
	}

	now := s.Now()
	var draft List
	if len(drafts) == 1 {
		draft = drafts[0]
		draft.IsEditing = false
		draft.EditingTargetListID = ""
	} else {
		draft = List{
			ID:          s.NewID(),
			OwnerUserID: requesterUserID,
			Status:      StatusDraft,
			CreatedAt:   now,
		}
	}
	draft.Title = src.Title
	draft.Items = s.copyItems(src.Items, draft.ID, now)
	draft.UpdatedAt = now
	draft.Normalize()

	if err := s.Repo.Save(ctx, draft); err != nil {
		return ReuseResult{}, err
	}
	metrics.ListReuses.Inc()
	return ReuseResult{Draft: draft.Summary(), Items: draft.ItemDTOs()}, nil
}

// copyItems produces unchecked copies with fresh identity. Catalog items get
// the deterministic composite id so identity stays stable across reuses;
// snapshot fields are carried verbatim.
func (s *Service) copyItems(items []Item, newListID string, now time.Time) []Item {
	out := make([]Item, 0, len(items))
	for _, src := range items {
		item := src
		item.ListID = newListID
		item.Checked = false
		item.CreatedAt = now
		item.UpdatedAt = now
		switch item.Kind {
		case contracts.ItemKindCatalog:
			item.ID = CatalogItemID(newListID, item.SourceProductID)
		default:
			item.ID = s.NewItemID()
		}
		out = append(out, item)
	}
	return out
}

// StartEditing checks an active list out into a draft-shaped workspace held
// on the owner's autosave draft. The active list itself is untouched until
// FinishEdit applies the workspace back.
func (s *Service) StartEditing(ctx context.Context, listID, requesterUserID string, isEditing bool) error {
	target, err := s.load(ctx, listID, requesterUserID)
	if err != nil {
		return err
	}
	if target.Status != StatusActive {
		return fmt.Errorf("%w: editing requires an active list", ErrInvalidTransition)
	}

	now := s.Now()
	draft, err := s.autosaveDraft(ctx, requesterUserID, now)
	if err != nil {
		return err
	}

	if !isEditing {
		return s.clearEditingSession(ctx, draft, now)
	}

	draft.Title = target.Title
	draft.Items = s.copyItemsForEditing(target.Items, draft.ID, now)
	draft.IsEditing = true
	draft.EditingTargetListID = target.ID
	draft.UpdatedAt = now
	draft.Normalize()
	return s.Repo.Save(ctx, draft)
}

// copyItemsForEditing keeps the checked flags: editing an active list must
// not lose what the user already ticked.
func (s *Service) copyItemsForEditing(items []Item, draftID string, now time.Time) []Item {
	out := s.copyItems(items, draftID, now)
	for i := range out {
		out[i].Checked = items[i].Checked
	}
	return out
}

// FinishEdit applies the editing workspace back onto the active list and
// clears the session. Without an open session it is a no-op.
func (s *Service) FinishEdit(ctx context.Context, listID, requesterUserID string) error {
	target, err := s.load(ctx, listID, requesterUserID)
	if err != nil {
		return err
	}
	if target.Status != StatusActive {
		return fmt.Errorf("%w: finish-edit requires an active list", ErrInvalidTransition)
	}

	drafts, err := s.Repo.FindDrafts(ctx, requesterUserID, true)
	if err != nil {
		return err
	}
	var session *List
	for i := range drafts {
		if drafts[i].IsEditing && drafts[i].EditingTargetListID == listID {
			session = &drafts[i]
			break
		}
	}
	if session == nil {
		return nil
	}

	now := s.Now()
	target.Title = session.Title
	target.Items = s.copyItemsForEditing(session.Items, target.ID, now)
	target.UpdatedAt = now
	target.Normalize()
	if err := s.Repo.Save(ctx, target); err != nil {
		return err
	}
	return s.clearEditingSession(ctx, *session, now)
}

func (s *Service) clearEditingSession(ctx context.Context, draft List, now time.Time) error {
	draft.Title = DefaultTitle
	draft.Items = []Item{}
	draft.IsEditing = false
	draft.EditingTargetListID = ""
	draft.UpdatedAt = now
	return s.Repo.Save(ctx, draft)
}

// autosaveDraft returns the owner's newest autosave draft, creating one on
// first use.
func (s *Service) autosaveDraft(ctx context.Context, ownerUserID string, now time.Time) (List, error) {
	drafts, err := s.Repo.FindDrafts(ctx, ownerUserID, true)
	if err != nil {
		return List{}, err
	}
	if len(drafts) > 0 {
		return drafts[0], nil
	}
	return List{
		ID:              s.NewID(),
		OwnerUserID:     ownerUserID,
		Title:           DefaultTitle,
		Status:          StatusDraft,
		IsAutosaveDraft: true,
		Items:           []Item{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// AddCatalogItem snapshots the product at the moment it is added, so
// upstream price or name changes never rewrite a committed list.
func (s *Service) AddCatalogItem(ctx context.Context, listID, requesterUserID, productID string, qty int, note string) (contracts.ListItemDTO, error) {
	l, err := s.load(ctx, listID, requesterUserID)
	if err != nil {
		return contracts.ListItemDTO{}, err
	}
	if l.Status == StatusCompleted {
		return contracts.ListItemDTO{}, fmt.Errorf("%w: completed list items are frozen", ErrInvalidTransition)
	}

	product, err := s.Catalog.Product(ctx, productID)
	if err != nil {
		return contracts.ListItemDTO{}, err
	}

	if qty <= 0 {
		qty = 1
	}
	now := s.Now()
	item := Item{
		ID:               CatalogItemID(l.ID, product.ID),
		ListID:           l.ID,
		Kind:             contracts.ItemKindCatalog,
		Name:             product.Name,
		Qty:              qty,
		Note:             note,
		SourceProductID:  product.ID,
		Thumbnail:        product.Thumbnail,
		Price:            product.Price,
		UnitSize:         product.UnitSize,
		UnitFormat:       product.UnitFormat,
		UnitPricePerUnit: product.UnitPricePerUnit,
		IsApproxSize:     product.IsApproxSize,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.InsertItem(ctx, item); err != nil {
		return contracts.ListItemDTO{}, err
	}
	if err := s.touch(ctx, l, now); err != nil {
		return contracts.ListItemDTO{}, err
	}
	return item.DTO(), nil
}

func (s *Service) AddManualItem(ctx context.Context, listID, requesterUserID, name string, qty int, note string) (contracts.ListItemDTO, error) {
	l, err := s.load(ctx, listID, requesterUserID)
	if err != nil {
		return contracts.ListItemDTO{}, err
	}
	if l.Status == StatusCompleted {
		return contracts.ListItemDTO{}, fmt.Errorf("%w: completed list items are frozen", ErrInvalidTransition)
	}

	if qty <= 0 {
		qty = 1
	}
	now := s.Now()
	item := Item{
		ID:        s.NewItemID(),
		ListID:    l.ID,
		Kind:      contracts.ItemKindManual,
		Name:      name,
		Qty:       qty,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.InsertItem(ctx, item); err != nil {
		return contracts.ListItemDTO{}, err
	}
	if err := s.touch(ctx, l, now); err != nil {
		return contracts.ListItemDTO{}, err
	}
	return item.DTO(), nil
}

// UpdateItem mutates qty/checked/note on any item and name on manual items
// only; a name edit on a catalog item is dropped without error.
func (s *Service) UpdateItem(ctx context.Context, listID, requesterUserID, itemID string, patch ItemPatch) (contracts.ListItemDTO, error) {
	l, err := s.load(ctx, listID, requesterUserID)
	if err != nil {
		return contracts.ListItemDTO{}, err
	}
	if l.Status == StatusCompleted {
		return contracts.ListItemDTO{}, fmt.Errorf("%w: completed list items are frozen", ErrInvalidTransition)
	}

	var item *Item
	for i := range l.Items {
		if l.Items[i].ID == itemID {
			item = &l.Items[i]
			break
		}
	}
	if item == nil {
		return contracts.ListItemDTO{}, ErrItemNotFound
	}

	if patch.Name != nil && item.Kind == contracts.ItemKindManual {
		item.Name = *patch.Name
	}
	if patch.Qty != nil && *patch.Qty > 0 {
		item.Qty = *patch.Qty
	}
	if patch.Checked != nil {
		item.Checked = *patch.Checked
	}
	if patch.Note != nil {
		item.Note = *patch.Note
	}

	now := s.Now()
	item.UpdatedAt = now
	if err := s.Repo.UpdateItem(ctx, *item); err != nil {
		return contracts.ListItemDTO{}, err
	}
	if err := s.touch(ctx, l, now); err != nil {
		return contracts.ListItemDTO{}, err
	}
	return item.DTO(), nil
}

func (s *Service) RemoveItem(ctx context.Context, listID, requesterUserID, itemID string) error {
	l, err := s.load(ctx, listID, requesterUserID)
	if err != nil {
		return err
	}
	if l.Status == StatusCompleted {
		return fmt.Errorf("%w: completed list items are frozen", ErrInvalidTransition)
	}
	if err := s.Repo.DeleteItem(ctx, listID, itemID); err != nil {
		return err
	}
	return s.touch(ctx, l, s.Now())
}

func (s *Service) Delete(ctx context.Context, listID, requesterUserID string) error {
	if _, err := s.load(ctx, listID, requesterUserID); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, listID)
}

func (s *Service) touch(ctx context.Context, l List, now time.Time) error {
	l.UpdatedAt = now
	l.Normalize()
	return s.Repo.TouchList(ctx, l)
}
