// Package autosave manages the per-user server-side draft slot: a List with
// IsAutosaveDraft set, reusing the aggregate rules and repository.
package autosave

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nuid"

	"github.com/listkeeper/project/internal/app/list"
	"github.com/listkeeper/project/internal/contracts"
	"github.com/listkeeper/project/internal/platform/metrics"
)

type Service struct {
	Repo      list.Repository
	Now       func() time.Time
	NewID     func() string
	NewItemID func() string
}

func NewService(repo list.Repository) *Service {
	return &Service{
		Repo:      repo,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     nuid.Next,
		NewItemID: uuid.NewString,
	}
}

// Put upserts the user's single autosave draft. It always targets "the"
// newest draft for the owner, so concurrent writers supersede each other
// instead of multiplying drafts.
func (s *Service) Put(ctx context.Context, userID string, payload contracts.DraftPayload) (contracts.ListSummary, error) {
	now := s.Now()
	draft, err := s.currentDraft(ctx, userID)
	if err != nil {
		return contracts.ListSummary{}, err
	}
	if draft == nil {
		draft = &list.List{
			ID:              s.NewID(),
			OwnerUserID:     userID,
			Status:          list.StatusDraft,
			IsAutosaveDraft: true,
			CreatedAt:       now,
		}
	}

	draft.Title = payload.Title
	draft.Items = s.draftItems(payload.Items, draft.ID, now)
	draft.UpdatedAt = now
	draft.Normalize()
	if err := s.Repo.Save(ctx, *draft); err != nil {
		return contracts.ListSummary{}, err
	}
	metrics.AutosavePuts.Inc()
	return draft.Summary(), nil
}

func (s *Service) draftItems(dtos []contracts.ListItemDTO, draftID string, now time.Time) []list.Item {
	items := make([]list.Item, 0, len(dtos))
	for _, dto := range dtos {
		item := list.ItemFromDTO(dto)
		item.ListID = draftID
		if item.ID == "" {
			if item.Kind == contracts.ItemKindCatalog {
				item.ID = list.CatalogItemID(draftID, item.SourceProductID)
			} else {
				item.ID = s.NewItemID()
			}
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.UpdatedAt = now
		items = append(items, item)
	}
	return items
}

// Get returns the current autosave draft, or nil when the user has none.
func (s *Service) Get(ctx context.Context, userID string) (*contracts.DraftSnapshot, error) {
	draft, err := s.currentDraft(ctx, userID)
	if err != nil || draft == nil {
		return nil, err
	}
	return &contracts.DraftSnapshot{
		ID:        draft.ID,
		Title:     draft.Title,
		Items:     draft.ItemDTOs(),
		UpdatedAt: draft.UpdatedAt,
	}, nil
}

func (s *Service) Delete(ctx context.Context, userID string) error {
	drafts, err := s.Repo.FindDrafts(ctx, userID, true)
	if err != nil {
		return err
	}
	for _, draft := range drafts {
		if err := s.Repo.Delete(ctx, draft.ID); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the surviving autosave draft after activation so stale
// content does not resurface, and deletes surplus drafts left behind by
// double-creation races. Non-autosave lists are never touched.
func (s *Service) Reset(ctx context.Context, userID, targetDraftID string) error {
	drafts, err := s.Repo.FindDrafts(ctx, userID, true)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		return nil
	}

	keeper := drafts[0]
	if targetDraftID != "" {
		for _, draft := range drafts {
			if draft.ID == targetDraftID {
				keeper = draft
				break
			}
		}
	}
	for _, draft := range drafts {
		if draft.ID == keeper.ID {
			continue
		}
		if err := s.Repo.Delete(ctx, draft.ID); err != nil {
			return err
		}
	}

	keeper.Title = ""
	keeper.Items = []list.Item{}
	keeper.IsEditing = false
	keeper.EditingTargetListID = ""
	keeper.UpdatedAt = s.Now()
	keeper.Normalize()
	if err := s.Repo.Save(ctx, keeper); err != nil {
		return err
	}
	metrics.AutosaveResets.Inc()
	return nil
}

// currentDraft picks the newest autosave draft; FindDrafts orders
// newest-first.
func (s *Service) currentDraft(ctx context.Context, userID string) (*list.List, error) {
	drafts, err := s.Repo.FindDrafts(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	return &drafts[0], nil
}
