package list

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listkeeper/project/internal/contracts"
)

// Repository persists the List aggregate. Save and Delete are transactional
// over the list row and its items.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, list List) error
	FindByID(ctx context.Context, listID string) (List, error)
	FindByOwner(ctx context.Context, ownerUserID string, status Status) ([]List, error)
	FindDrafts(ctx context.Context, ownerUserID string, autosaveOnly bool) ([]List, error)
	InsertItem(ctx context.Context, item Item) error
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, listID, itemID string) error
	TouchList(ctx context.Context, list List) error
	Delete(ctx context.Context, listID string) error
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createListsSQL = `
CREATE TABLE IF NOT EXISTS lists (
  id text PRIMARY KEY,
  owner_user_id text NOT NULL,
  title text NOT NULL,
  status text NOT NULL,
  is_autosave_draft boolean NOT NULL DEFAULT false,
  activated_at timestamptz,
  is_editing boolean NOT NULL DEFAULT false,
  editing_target_list_id text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL,
  updated_at timestamptz NOT NULL
)`

const createListsOwnerIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_lists_owner_status ON lists(owner_user_id, status)`

const createItemsSQL = `
CREATE TABLE IF NOT EXISTS list_items (
  id text NOT NULL,
  list_id text NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
  kind text NOT NULL,
  name text NOT NULL,
  qty integer NOT NULL DEFAULT 1,
  checked boolean NOT NULL DEFAULT false,
  note text NOT NULL DEFAULT '',
  source_product_id text NOT NULL DEFAULT '',
  thumbnail text NOT NULL DEFAULT '',
  price double precision NOT NULL DEFAULT 0,
  unit_size double precision NOT NULL DEFAULT 0,
  unit_format text NOT NULL DEFAULT '',
  unit_price_per_unit double precision NOT NULL DEFAULT 0,
  is_approx_size boolean NOT NULL DEFAULT false,
  position integer NOT NULL,
  created_at timestamptz NOT NULL,
  updated_at timestamptz NOT NULL,
  PRIMARY KEY (list_id, id)
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createListsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createListsOwnerIndexSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createItemsSQL); err != nil {
		return err
	}
	return nil
}

const upsertListSQL = `
INSERT INTO lists (
  id, owner_user_id, title, status, is_autosave_draft,
  activated_at, is_editing, editing_target_list_id, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title,
    status = EXCLUDED.status,
    is_autosave_draft = EXCLUDED.is_autosave_draft,
    activated_at = EXCLUDED.activated_at,
    is_editing = EXCLUDED.is_editing,
    editing_target_list_id = EXCLUDED.editing_target_list_id,
    updated_at = EXCLUDED.updated_at
`

const insertItemSQL = `
INSERT INTO list_items (
  id, list_id, kind, name, qty, checked, note,
  source_product_id, thumbnail, price, unit_size, unit_format,
  unit_price_per_unit, is_approx_size, position, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`

// Save upserts the list row and replaces its items in one transaction, so a
// status update never partially applies.
func (r *PostgresRepository) Save(ctx context.Context, l List) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertListSQL,
		l.ID, l.OwnerUserID, l.Title, string(l.Status), l.IsAutosaveDraft,
		l.ActivatedAt, l.IsEditing, l.EditingTargetListID, l.CreatedAt, l.UpdatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM list_items WHERE list_id = $1`, l.ID); err != nil {
		return err
	}
	for pos, item := range l.Items {
		if _, err := tx.Exec(ctx, insertItemSQL,
			item.ID, l.ID, string(item.Kind), item.Name, item.Qty, item.Checked, item.Note,
			item.SourceProductID, item.Thumbnail, item.Price, item.UnitSize, item.UnitFormat,
			item.UnitPricePerUnit, item.IsApproxSize, pos, item.CreatedAt, item.UpdatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

const selectListSQL = `
SELECT id, owner_user_id, title, status, is_autosave_draft,
       activated_at, is_editing, editing_target_list_id, created_at, updated_at
FROM lists`

func scanList(row pgx.Row) (List, error) {
	var l List
	var status string
	err := row.Scan(
		&l.ID, &l.OwnerUserID, &l.Title, &status, &l.IsAutosaveDraft,
		&l.ActivatedAt, &l.IsEditing, &l.EditingTargetListID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return List{}, err
	}
	l.Status = Status(status)
	return l, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, listID string) (List, error) {
	l, err := scanList(r.Pool.QueryRow(ctx, selectListSQL+` WHERE id = $1`, listID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return List{}, ErrListNotFound
		}
		return List{}, err
	}
	items, err := r.loadItems(ctx, listID)
	if err != nil {
		return List{}, err
	}
	l.Items = items
	return l, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, listID string) ([]Item, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, list_id, kind, name, qty, checked, note,
		        source_product_id, thumbnail, price, unit_size, unit_format,
		        unit_price_per_unit, is_approx_size, created_at, updated_at
		 FROM list_items
		 WHERE list_id = $1
		 ORDER BY position`,
		listID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		var kind string
		if err := rows.Scan(
			&item.ID, &item.ListID, &kind, &item.Name, &item.Qty, &item.Checked, &item.Note,
			&item.SourceProductID, &item.Thumbnail, &item.Price, &item.UnitSize, &item.UnitFormat,
			&item.UnitPricePerUnit, &item.IsApproxSize, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Kind = contracts.ItemKind(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PostgresRepository) FindByOwner(ctx context.Context, ownerUserID string, status Status) ([]List, error) {
	query := selectListSQL + ` WHERE owner_user_id = $1 AND is_autosave_draft = false`
	args := []any{ownerUserID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := make([]List, 0)
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lists, nil
}

// FindDrafts returns the owner's drafts newest-first, items included, since
// both reuse-into-draft and autosave target "the" draft for an owner.
func (r *PostgresRepository) FindDrafts(ctx context.Context, ownerUserID string, autosaveOnly bool) ([]List, error) {
	query := selectListSQL + ` WHERE owner_user_id = $1 AND status = $2`
	if autosaveOnly {
		query += ` AND is_autosave_draft = true`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.Pool.Query(ctx, query, ownerUserID, string(StatusDraft))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drafts := make([]List, 0)
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range drafts {
		items, err := r.loadItems(ctx, drafts[i].ID)
		if err != nil {
			return nil, err
		}
		drafts[i].Items = items
	}
	return drafts, nil
}

const appendItemSQL = `
INSERT INTO list_items (
  id, list_id, kind, name, qty, checked, note,
  source_product_id, thumbnail, price, unit_size, unit_format,
  unit_price_per_unit, is_approx_size, position, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
        COALESCE((SELECT MAX(position) + 1 FROM list_items WHERE list_id = $2), 0),
        $15, $16)
ON CONFLICT (list_id, id) DO UPDATE
SET name = EXCLUDED.name, qty = EXCLUDED.qty, checked = EXCLUDED.checked,
    note = EXCLUDED.note, updated_at = EXCLUDED.updated_at
`

func (r *PostgresRepository) InsertItem(ctx context.Context, item Item) error {
	_, err := r.Pool.Exec(ctx, appendItemSQL,
		item.ID, item.ListID, string(item.Kind), item.Name, item.Qty, item.Checked, item.Note,
		item.SourceProductID, item.Thumbnail, item.Price, item.UnitSize, item.UnitFormat,
		item.UnitPricePerUnit, item.IsApproxSize, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) UpdateItem(ctx context.Context, item Item) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE list_items
		 SET name = $3, qty = $4, checked = $5, note = $6, updated_at = $7
		 WHERE list_id = $1 AND id = $2`,
		item.ListID, item.ID, item.Name, item.Qty, item.Checked, item.Note, item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteItem(ctx context.Context, listID, itemID string) error {
	res, err := r.Pool.Exec(ctx,
		`DELETE FROM list_items WHERE list_id = $1 AND id = $2`,
		listID, itemID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// TouchList updates the list row only, leaving items alone.
func (r *PostgresRepository) TouchList(ctx context.Context, l List) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE lists
		 SET title = $2, status = $3, activated_at = $4,
		     is_editing = $5, editing_target_list_id = $6, updated_at = $7
		 WHERE id = $1`,
		l.ID, l.Title, string(l.Status), l.ActivatedAt,
		l.IsEditing, l.EditingTargetListID, l.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrListNotFound
	}
	return nil
}

// Delete removes the list and its items; items go with the list via the
// ON DELETE CASCADE constraint inside the same statement's transaction.
func (r *PostgresRepository) Delete(ctx context.Context, listID string) error {
	res, err := r.Pool.Exec(ctx, `DELETE FROM lists WHERE id = $1`, listID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrListNotFound
	}
	return nil
}
