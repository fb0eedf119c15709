// The sync agent is the client half of the draft protocol: it keeps the
// durable local draft cache, reconciles it against the server's autosave
// slot on startup, reacts to tab-sync events from other tabs of the same
// user, and executes lifecycle commands fed by the embedding UI process on
// stdin.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/listkeeper/project/internal/client/agent"
	"github.com/listkeeper/project/internal/client/autosync"
	"github.com/listkeeper/project/internal/client/listclient"
	"github.com/listkeeper/project/internal/client/localdraft"
	"github.com/listkeeper/project/internal/client/reconcile"
	"github.com/listkeeper/project/internal/contracts"
	"github.com/listkeeper/project/internal/platform/env"
	"github.com/listkeeper/project/internal/platform/logging"
	"github.com/listkeeper/project/internal/platform/natsutil"
	"github.com/listkeeper/project/internal/tabsync"
)

func main() {
	logging.Setup()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiURL := env.String("LIST_API_URL", "http://localhost:8080")
	token := env.String("LIST_API_TOKEN", "")
	userID := env.String("LIST_USER_ID", "")
	cachePath := env.String("DRAFT_CACHE_PATH", filepath.Join(cacheDir(), "draft.db"))
	if token == "" || userID == "" {
		slog.Error("LIST_API_TOKEN and LIST_USER_ID are required")
		os.Exit(1)
	}
	tabID := uuid.NewString()

	store, err := localdraft.Open(cachePath)
	if err != nil {
		slog.Error("draft cache open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	remote := autosync.NewHTTPRemote(apiURL, token)
	resolver := reconcile.NewResolver(store, remote)

	outcome, err := resolver.Resolve(runCtx)
	if err != nil {
		// Keep working from whatever the cache holds; the next successful
		// round-trip reconciles.
		slog.Warn("draft reconciliation failed", "error", err)
	} else {
		handleOutcome(runCtx, resolver, outcome)
	}

	scheduler := autosync.NewScheduler(remote, store)
	scheduler.Debounce = env.Duration("AUTOSAVE_DEBOUNCE", autosync.DefaultDebounce)
	defer scheduler.Cancel()

	broadcaster := openBroadcaster(userID, tabID)
	defer broadcaster.Close()

	ag := agent.New(store, scheduler, broadcaster, listclient.New(apiURL, token))

	unsubscribe, err := broadcaster.Subscribe(func(event contracts.TabEvent) {
		slog.Info("tab event", "type", event.Type, "source_tab", event.SourceTabID)
		refreshCtx, cancel := context.WithTimeout(runCtx, 5*time.Second)
		defer cancel()
		refreshBase(refreshCtx, store, remote, event)
	})
	if err != nil {
		slog.Error("tab subscription failed", "error", err)
		os.Exit(1)
	}
	defer unsubscribe()

	go commandLoop(runCtx, ag)

	slog.Info("sync agent running", "tab_id", tabID, "cache", cachePath)
	<-runCtx.Done()
}

// command is one line of the stdin protocol the embedding UI process speaks:
// a JSON object per line, discriminated by op.
type command struct {
	Op             string                  `json:"op"`
	ListID         string                  `json:"list_id"`
	CheckedItemIDs []string                `json:"checked_item_ids"`
	Draft          *contracts.DraftPayload `json:"draft"`
}

func commandLoop(ctx context.Context, ag *agent.Agent) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var cmd command
		if err := json.Unmarshal(line, &cmd); err != nil {
			slog.Warn("malformed command", "error", err)
			continue
		}
		runCommand(ctx, ag, cmd)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("command input closed", "error", err)
	}
}

func runCommand(ctx context.Context, ag *agent.Agent, cmd command) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	switch cmd.Op {
	case "save":
		if cmd.Draft == nil {
			slog.Warn("save command without a draft")
			return
		}
		ag.SaveDraft(*cmd.Draft)
		return
	case "activate":
		_, err = ag.Activate(opCtx, cmd.ListID)
	case "complete":
		_, err = ag.Complete(opCtx, cmd.ListID, cmd.CheckedItemIDs)
	case "reuse":
		_, err = ag.Reuse(opCtx, cmd.ListID)
	case "delete":
		err = ag.Delete(opCtx, cmd.ListID)
	case "start-editing":
		err = ag.StartEditing(opCtx, cmd.ListID)
	case "cancel-editing":
		err = ag.CancelEditing(opCtx, cmd.ListID)
	case "finish-editing":
		err = ag.FinishEditing(opCtx, cmd.ListID)
	default:
		slog.Warn("unknown command", "op", cmd.Op)
		return
	}
	if err != nil {
		slog.Warn("command failed", "op", cmd.Op, "list_id", cmd.ListID, "error", err)
		return
	}
	slog.Info("command applied", "op", cmd.Op, "list_id", cmd.ListID)
}

// handleOutcome applies the reconciliation decision. Conflicts need an
// explicit choice; a headless agent takes it from the environment and
// otherwise leaves the conflict standing.
func handleOutcome(ctx context.Context, resolver *reconcile.Resolver, outcome reconcile.Outcome) {
	if outcome.Decision != reconcile.DecisionConflict {
		slog.Info("draft reconciled", "decision", outcome.Decision)
		return
	}

	choice := strings.ToLower(env.String("CONFLICT_CHOICE", ""))
	conflict := *outcome.Conflict
	switch choice {
	case "keep-local":
		if _, err := resolver.KeepLocal(ctx, conflict); err != nil {
			slog.Warn("keep-local failed", "error", err)
		}
	case "keep-remote":
		if _, err := resolver.KeepRemote(ctx, conflict); err != nil {
			slog.Warn("keep-remote failed", "error", err)
		}
	default:
		slog.Warn("draft conflict needs a choice",
			"local_updated_at", conflict.LocalUpdatedAt,
			"remote_updated_at", conflict.Remote.UpdatedAt,
			"hint", "set CONFLICT_CHOICE=keep-local or keep-remote")
	}
}

// refreshBase re-reads authoritative state after an invalidation signal;
// the event body itself is never trusted.
func refreshBase(ctx context.Context, store *localdraft.Store, remote autosync.RemoteStore, event contracts.TabEvent) {
	switch event.Type {
	case contracts.TabListActivated, contracts.TabListReused, contracts.TabEditingFinished:
		snapshot, err := remote.Get(ctx)
		if err != nil {
			slog.Warn("draft refresh failed", "error", err)
			return
		}
		if snapshot == nil {
			if err := store.ClearDraft(); err == nil {
				_ = store.ClearBaseUpdatedAt()
			}
			return
		}
		if err := store.SaveDraft(contracts.DraftPayload{Title: snapshot.Title, Items: snapshot.Items}); err != nil {
			slog.Warn("draft refresh persist failed", "error", err)
			return
		}
		_ = store.SetBaseUpdatedAt(snapshot.UpdatedAt)
	default:
	}
}

// openBroadcaster prefers the NATS channel and falls back to the shared
// spool file when no broker is reachable.
func openBroadcaster(userID, tabID string) tabsync.Broadcaster {
	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	conn, err := natsutil.ConnectWithRetry(natsURL, env.Duration("NATS_CONNECT_TIMEOUT", 2*time.Second))
	if err == nil {
		slog.Info("tab sync via nats", "url", natsURL)
		return natsCloser{NATSBroadcaster: tabsync.NewNATSBroadcaster(conn, userID, tabID), conn: conn}
	}

	spool := env.String("TAB_SPOOL_PATH", filepath.Join(cacheDir(), "tab-events-"+userID+".jsonl"))
	slog.Info("tab sync via spool file", "path", spool)
	return tabsync.NewFileBroadcaster(spool, tabID)
}

// natsCloser ties the broadcaster's lifetime to its connection.
type natsCloser struct {
	*tabsync.NATSBroadcaster
	conn *nats.Conn
}

func (c natsCloser) Close() error {
	natsutil.Close(c.conn)
	return nil
}

func cacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "listkeeper")
}
