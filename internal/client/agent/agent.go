// Package agent ties the client-side pieces into one surface for the
// embedding UI process: draft edits feed the autosave scheduler, lifecycle
// actions go through the list API and fan the matching tab event out to the
// user's other tabs.
package agent

import (
	"context"
	"log/slog"

	"github.com/listkeeper/project/internal/client/autosync"
	"github.com/listkeeper/project/internal/client/listclient"
	"github.com/listkeeper/project/internal/client/localdraft"
	"github.com/listkeeper/project/internal/contracts"
	"github.com/listkeeper/project/internal/tabsync"
)

// API is the slice of the list API the agent drives.
type API interface {
	Activate(ctx context.Context, listID string) (contracts.ListSummary, error)
	Complete(ctx context.Context, listID string, checkedItemIDs []string) (contracts.ListSummary, error)
	Reuse(ctx context.Context, listID string) (listclient.ReuseResult, error)
	DeleteList(ctx context.Context, listID string) error
	SetEditing(ctx context.Context, listID string, editing bool) error
	FinishEdit(ctx context.Context, listID string) error
	ResetAutosave(ctx context.Context, targetDraftID string) error
}

type Agent struct {
	Local       *localdraft.Store
	Scheduler   *autosync.Scheduler
	Broadcaster tabsync.Broadcaster
	API         API
}

func New(local *localdraft.Store, scheduler *autosync.Scheduler, broadcaster tabsync.Broadcaster, api API) *Agent {
	return &Agent{
		Local:       local,
		Scheduler:   scheduler,
		Broadcaster: broadcaster,
		API:         api,
	}
}

// SaveDraft records a draft edit: persisted locally right away, mirrored to
// the server after the debounce window.
func (a *Agent) SaveDraft(draft contracts.DraftPayload) {
	a.Scheduler.Schedule(draft)
}

// Activate commits the draft into an active list, then clears the draft
// state everywhere: the pending autosave, the server's slot, the local
// cache. Other tabs get a list-activated signal and re-fetch.
func (a *Agent) Activate(ctx context.Context, listID string) (contracts.ListSummary, error) {
	summary, err := a.API.Activate(ctx, listID)
	if err != nil {
		return contracts.ListSummary{}, err
	}
	a.Scheduler.Cancel()
	if err := a.API.ResetAutosave(ctx, ""); err != nil {
		slog.Warn("autosave reset failed", "error", err)
	}
	a.clearLocalDraft()
	a.publish(contracts.TabListActivated)
	return summary, nil
}

// Complete closes out an active list. No tab event is defined for
// completion; the list leaves every tab's draft surface at activation.
func (a *Agent) Complete(ctx context.Context, listID string, checkedItemIDs []string) (contracts.ListSummary, error) {
	return a.API.Complete(ctx, listID, checkedItemIDs)
}

// Reuse copies a completed list into a draft and adopts that draft as the
// local working copy.
func (a *Agent) Reuse(ctx context.Context, listID string) (listclient.ReuseResult, error) {
	result, err := a.API.Reuse(ctx, listID)
	if err != nil {
		return listclient.ReuseResult{}, err
	}
	draft := contracts.DraftPayload{Title: result.Draft.Title, Items: result.Items}
	if err := a.Local.SaveDraft(draft); err != nil {
		slog.Warn("reused draft local persist failed", "error", err)
	} else if err := a.Local.SetBaseUpdatedAt(result.Draft.UpdatedAt); err != nil {
		slog.Warn("reused draft base record failed", "error", err)
	}
	a.publish(contracts.TabListReused)
	return result, nil
}

func (a *Agent) Delete(ctx context.Context, listID string) error {
	if err := a.API.DeleteList(ctx, listID); err != nil {
		return err
	}
	a.publish(contracts.TabListDeleted)
	return nil
}

func (a *Agent) StartEditing(ctx context.Context, listID string) error {
	if err := a.API.SetEditing(ctx, listID, true); err != nil {
		return err
	}
	a.publish(contracts.TabEditingStarted)
	return nil
}

// CancelEditing discards the editing workspace on the server and locally.
func (a *Agent) CancelEditing(ctx context.Context, listID string) error {
	if err := a.API.SetEditing(ctx, listID, false); err != nil {
		return err
	}
	a.Scheduler.Cancel()
	a.clearLocalDraft()
	a.publish(contracts.TabEditingCancelled)
	return nil
}

// FinishEditing applies the workspace back onto the active list; the
// workspace draft is cleared on both sides afterwards.
func (a *Agent) FinishEditing(ctx context.Context, listID string) error {
	if err := a.API.FinishEdit(ctx, listID); err != nil {
		return err
	}
	a.Scheduler.Cancel()
	a.clearLocalDraft()
	a.publish(contracts.TabEditingFinished)
	return nil
}

func (a *Agent) clearLocalDraft() {
	if err := a.Local.ClearDraft(); err != nil {
		slog.Warn("local draft clear failed", "error", err)
		return
	}
	if err := a.Local.ClearBaseUpdatedAt(); err != nil {
		slog.Warn("sync metadata clear failed", "error", err)
	}
}

// publish is fire-and-forget; a failed broadcast only delays the other
// tabs until their next fetch.
func (a *Agent) publish(eventType contracts.TabEventType) {
	if a.Broadcaster == nil {
		return
	}
	if err := a.Broadcaster.Publish(eventType); err != nil {
		slog.Warn("tab event publish failed", "type", eventType, "error", err)
	}
}
