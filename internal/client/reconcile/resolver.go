// Package reconcile decides, at startup, which copy of the draft is the
// truth: the local cache or the server's autosave slot. Timestamps settle
// it silently; only equal timestamps with differing content surface an
// explicit choice, because guessing there risks invisible data loss.
package reconcile

import (
	"context"
	"reflect"
	"time"

	"github.com/listkeeper/project/internal/client/autosync"
	"github.com/listkeeper/project/internal/client/localdraft"
	"github.com/listkeeper/project/internal/contracts"
	"github.com/listkeeper/project/internal/platform/metrics"
)

type Decision string

const (
	DecisionNoDraft       Decision = "no-draft"
	DecisionInSync        Decision = "in-sync"
	DecisionLocalPushed   Decision = "local-pushed"
	DecisionRemoteAdopted Decision = "remote-adopted"
	DecisionConflict      Decision = "conflict"
)

// Outcome reports the reconciliation result. Draft is the copy now adopted
// in memory; on DecisionConflict both sides are carried so the caller can
// present the choice.
type Outcome struct {
	Decision Decision
	Draft    *contracts.DraftPayload
	Conflict *Conflict
}

// Conflict holds both sides of an unresolvable timestamp tie.
type Conflict struct {
	Local          contracts.DraftPayload
	LocalUpdatedAt time.Time
	Remote         contracts.DraftSnapshot
}

type Resolver struct {
	Local  *localdraft.Store
	Remote autosync.RemoteStore

	prompted bool
}

func NewResolver(local *localdraft.Store, remote autosync.RemoteStore) *Resolver {
	return &Resolver{Local: local, Remote: remote}
}

func isEmptyDraft(draft contracts.DraftPayload) bool {
	return draft.Title == "" && len(draft.Items) == 0
}

// sameContent compares drafts field by field. Item slices compare by
// elements so a nil slice and an empty one are the same draft; a fresh
// draft round-trips through JSON either way.
func sameContent(local contracts.DraftPayload, remote contracts.DraftSnapshot) bool {
	if local.Title != remote.Title {
		return false
	}
	if len(local.Items) != len(remote.Items) {
		return false
	}
	for i := range local.Items {
		if !reflect.DeepEqual(local.Items[i], remote.Items[i]) {
			return false
		}
	}
	return true
}

func remotePayload(remote contracts.DraftSnapshot) contracts.DraftPayload {
	return contracts.DraftPayload{Title: remote.Title, Items: remote.Items}
}

// Resolve compares the cached draft against the remote autosave slot. A
// failed remote fetch propagates as an error; the caller keeps working from
// whatever draft is already in memory.
func (r *Resolver) Resolve(ctx context.Context) (Outcome, error) {
	cached, err := r.Local.LoadDraft()
	if err != nil {
		return Outcome{}, err
	}
	remote, err := r.Remote.Get(ctx)
	if err != nil {
		return Outcome{}, err
	}

	localEmpty := cached == nil || isEmptyDraft(cached.Draft)

	switch {
	case remote == nil && localEmpty:
		return r.outcome(Outcome{Decision: DecisionNoDraft}), nil

	case remote == nil:
		return r.pushLocal(ctx, cached.Draft)

	case localEmpty:
		return r.adoptRemote(*remote)

	case cached.UpdatedAt.After(remote.UpdatedAt):
		return r.pushLocal(ctx, cached.Draft)

	case remote.UpdatedAt.After(cached.UpdatedAt):
		return r.adoptRemote(*remote)

	case sameContent(cached.Draft, *remote):
		if err := r.Local.SetBaseUpdatedAt(remote.UpdatedAt); err != nil {
			return Outcome{}, err
		}
		draft := cached.Draft
		return r.outcome(Outcome{Decision: DecisionInSync, Draft: &draft}), nil

	default:
		// Same timestamp, different content. Asked at most once per
		// session; after a resolution the sides converge anyway.
		if r.prompted {
			draft := cached.Draft
			return Outcome{Decision: DecisionInSync, Draft: &draft}, nil
		}
		r.prompted = true
		draft := cached.Draft
		return r.outcome(Outcome{
			Decision: DecisionConflict,
			Draft:    &draft,
			Conflict: &Conflict{
				Local:          cached.Draft,
				LocalUpdatedAt: cached.UpdatedAt,
				Remote:         *remote,
			},
		}), nil
	}
}

// KeepLocal resolves a conflict by pushing the local draft over the remote
// slot.
func (r *Resolver) KeepLocal(ctx context.Context, c Conflict) (contracts.DraftPayload, error) {
	summary, err := r.Remote.Put(ctx, c.Local)
	if err != nil {
		return contracts.DraftPayload{}, err
	}
	if err := r.Local.SetBaseUpdatedAt(summary.UpdatedAt); err != nil {
		return contracts.DraftPayload{}, err
	}
	metrics.ConflictResolutions.WithLabelValues("keep-local").Inc()
	return c.Local, nil
}

// KeepRemote resolves a conflict by adopting the remote draft and
// overwriting the local cache.
func (r *Resolver) KeepRemote(_ context.Context, c Conflict) (contracts.DraftPayload, error) {
	adopted := remotePayload(c.Remote)
	if err := r.Local.SaveDraft(adopted); err != nil {
		return contracts.DraftPayload{}, err
	}
	if err := r.Local.SetBaseUpdatedAt(c.Remote.UpdatedAt); err != nil {
		return contracts.DraftPayload{}, err
	}
	metrics.ConflictResolutions.WithLabelValues("keep-remote").Inc()
	return adopted, nil
}

func (r *Resolver) pushLocal(ctx context.Context, draft contracts.DraftPayload) (Outcome, error) {
	summary, err := r.Remote.Put(ctx, draft)
	if err != nil {
		return Outcome{}, err
	}
	if err := r.Local.SetBaseUpdatedAt(summary.UpdatedAt); err != nil {
		return Outcome{}, err
	}
	return r.outcome(Outcome{Decision: DecisionLocalPushed, Draft: &draft}), nil
}

func (r *Resolver) adoptRemote(remote contracts.DraftSnapshot) (Outcome, error) {
	adopted := remotePayload(remote)
	if err := r.Local.SaveDraft(adopted); err != nil {
		return Outcome{}, err
	}
	if err := r.Local.SetBaseUpdatedAt(remote.UpdatedAt); err != nil {
		return Outcome{}, err
	}
	return r.outcome(Outcome{Decision: DecisionRemoteAdopted, Draft: &adopted}), nil
}

func (r *Resolver) outcome(o Outcome) Outcome {
	metrics.ConflictResolutions.WithLabelValues(string(o.Decision)).Inc()
	return o
}
