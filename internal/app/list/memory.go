package list

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps aggregates in process memory. The status state
// machine does not prescribe a storage engine; this backing serves tests and
// single-process setups, the postgres repository serves deployments.
type MemoryRepository struct {
	mu    sync.Mutex
	lists map[string]List
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{lists: map[string]List{}}
}

func (r *MemoryRepository) EnsureSchema(context.Context) error { return nil }

func cloneList(l List) List {
	out := l
	out.Items = append([]Item(nil), l.Items...)
	if l.ActivatedAt != nil {
		at := *l.ActivatedAt
		out.ActivatedAt = &at
	}
	return out
}

func (r *MemoryRepository) Save(_ context.Context, l List) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[l.ID] = cloneList(l)
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, listID string) (List, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[listID]
	if !ok {
		return List{}, ErrListNotFound
	}
	return cloneList(l), nil
}

func (r *MemoryRepository) FindByOwner(_ context.Context, ownerUserID string, status Status) ([]List, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]List, 0)
	for _, l := range r.lists {
		if l.OwnerUserID != ownerUserID || l.IsAutosaveDraft {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		out = append(out, cloneList(l))
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepository) FindDrafts(_ context.Context, ownerUserID string, autosaveOnly bool) ([]List, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]List, 0)
	for _, l := range r.lists {
		if l.OwnerUserID != ownerUserID || l.Status != StatusDraft {
			continue
		}
		if autosaveOnly && !l.IsAutosaveDraft {
			continue
		}
		out = append(out, cloneList(l))
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(lists []List) {
	sort.SliceStable(lists, func(i, j int) bool {
		return lists[i].UpdatedAt.After(lists[j].UpdatedAt)
	})
}

func (r *MemoryRepository) InsertItem(_ context.Context, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[item.ListID]
	if !ok {
		return ErrListNotFound
	}
	for i := range l.Items {
		if l.Items[i].ID == item.ID {
			l.Items[i] = item
			r.lists[item.ListID] = l
			return nil
		}
	}
	l.Items = append(l.Items, item)
	r.lists[item.ListID] = l
	return nil
}

func (r *MemoryRepository) UpdateItem(_ context.Context, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[item.ListID]
	if !ok {
		return ErrItemNotFound
	}
	for i := range l.Items {
		if l.Items[i].ID == item.ID {
			l.Items[i] = item
			r.lists[item.ListID] = l
			return nil
		}
	}
	return ErrItemNotFound
}

func (r *MemoryRepository) DeleteItem(_ context.Context, listID, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[listID]
	if !ok {
		return ErrItemNotFound
	}
	for i := range l.Items {
		if l.Items[i].ID == itemID {
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			r.lists[listID] = l
			return nil
		}
	}
	return ErrItemNotFound
}

func (r *MemoryRepository) TouchList(_ context.Context, l List) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.lists[l.ID]
	if !ok {
		return ErrListNotFound
	}
	stored.Title = l.Title
	stored.Status = l.Status
	stored.ActivatedAt = l.ActivatedAt
	stored.IsEditing = l.IsEditing
	stored.EditingTargetListID = l.EditingTargetListID
	stored.UpdatedAt = l.UpdatedAt
	r.lists[l.ID] = stored
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, listID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lists[listID]; !ok {
		return ErrListNotFound
	}
	delete(r.lists, listID)
	return nil
}
