package contracts

import "time"

// ItemKind discriminates the two list item variants.
type ItemKind string

const (
	ItemKindManual  ItemKind = "manual"
	ItemKindCatalog ItemKind = "catalog"
)

// ListItemDTO is the wire shape of a list item. For catalog items the
// snapshot fields are frozen at the moment the product was added; Name then
// carries the name snapshot.
type ListItemDTO struct {
	ID      string   `json:"id,omitempty"`
	ListID  string   `json:"list_id,omitempty"`
	Kind    ItemKind `json:"kind"`
	Name    string   `json:"name"`
	Qty     int      `json:"qty"`
	Checked bool     `json:"checked"`
	Note    string   `json:"note,omitempty"`

	SourceProductID  string  `json:"source_product_id,omitempty"`
	Thumbnail        string  `json:"thumbnail,omitempty"`
	Price            float64 `json:"price,omitempty"`
	UnitSize         float64 `json:"unit_size,omitempty"`
	UnitFormat       string  `json:"unit_format,omitempty"`
	UnitPricePerUnit float64 `json:"unit_price_per_unit,omitempty"`
	IsApproxSize     bool    `json:"is_approx_size,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DraftPayload is the draft body exchanged with the autosave endpoint and
// persisted by the local cache. Uncommitted manual entries have no id yet.
type DraftPayload struct {
	Title string        `json:"title"`
	Items []ListItemDTO `json:"items"`
}

// DraftSnapshot is the server's view of the autosave draft.
type DraftSnapshot struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Items     []ListItemDTO `json:"items"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ListSummary is returned by create/list/transition endpoints.
type ListSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TabEventType enumerates the cross-tab invalidation signals.
type TabEventType string

const (
	TabListActivated    TabEventType = "list-activated"
	TabListDeleted      TabEventType = "list-deleted"
	TabListReused       TabEventType = "list-reused"
	TabEditingStarted   TabEventType = "editing-started"
	TabEditingFinished  TabEventType = "editing-finished"
	TabEditingCancelled TabEventType = "editing-cancelled"
)

// TabEvent carries no authoritative state; receivers re-fetch instead of
// trusting the body.
type TabEvent struct {
	Type        TabEventType `json:"type"`
	SourceTabID string       `json:"source_tab_id"`
	Timestamp   time.Time    `json:"timestamp"`
}
