package list

import (
	"errors"
	"strings"
	"time"

	"github.com/listkeeper/project/internal/contracts"
)

var (
	ErrListNotFound      = errors.New("list not found")
	ErrListForbidden     = errors.New("list does not belong to requester")
	ErrItemNotFound      = errors.New("item not found")
	ErrInvalidTransition = errors.New("illegal status transition")
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

// DefaultTitle replaces a blank title on save.
const DefaultTitle = "Shopping list"

func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusDraft:
		return StatusDraft, true
	case StatusActive:
		return StatusActive, true
	case StatusCompleted:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// Item is one entry of a list. Catalog items freeze the product fields at
// the moment they were added; only Qty, Checked and Note stay mutable.
type Item struct {
	ID      string
	ListID  string
	Kind    contracts.ItemKind
	Name    string
	Qty     int
	Checked bool
	Note    string

	SourceProductID  string
	Thumbnail        string
	Price            float64
	UnitSize         float64
	UnitFormat       string
	UnitPricePerUnit float64
	IsApproxSize     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// List is the aggregate root. Items keep insertion order.
type List struct {
	ID                  string
	OwnerUserID         string
	Title               string
	Status              Status
	IsAutosaveDraft     bool
	ActivatedAt         *time.Time
	IsEditing           bool
	EditingTargetListID string
	Items               []Item
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Normalize enforces the aggregate invariants before every save: an editing
// session only exists on a draft, and a blank title gets the placeholder.
func (l *List) Normalize() {
	if l.Status != StatusDraft {
		l.IsEditing = false
		l.EditingTargetListID = ""
	}
	if strings.TrimSpace(l.Title) == "" {
		l.Title = DefaultTitle
	}
}

func transitionAllowed(from, to Status) bool {
	switch {
	case from == StatusDraft && to == StatusActive:
		return true
	case from == StatusActive && to == StatusCompleted:
		return true
	default:
		return false
	}
}

// CatalogItemID derives the deterministic composite id for a catalog item,
// stable across list reuses.
func CatalogItemID(listID, sourceProductID string) string {
	return listID + ":" + sourceProductID
}

func (i Item) DTO() contracts.ListItemDTO {
	return contracts.ListItemDTO{
		ID:               i.ID,
		ListID:           i.ListID,
		Kind:             i.Kind,
		Name:             i.Name,
		Qty:              i.Qty,
		Checked:          i.Checked,
		Note:             i.Note,
		SourceProductID:  i.SourceProductID,
		Thumbnail:        i.Thumbnail,
		Price:            i.Price,
		UnitSize:         i.UnitSize,
		UnitFormat:       i.UnitFormat,
		UnitPricePerUnit: i.UnitPricePerUnit,
		IsApproxSize:     i.IsApproxSize,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
	}
}

func ItemFromDTO(dto contracts.ListItemDTO) Item {
	kind := dto.Kind
	if kind == "" {
		kind = contracts.ItemKindManual
	}
	qty := dto.Qty
	if qty <= 0 {
		qty = 1
	}
	return Item{
		ID:               dto.ID,
		ListID:           dto.ListID,
		Kind:             kind,
		Name:             dto.Name,
		Qty:              qty,
		Checked:          dto.Checked,
		Note:             dto.Note,
		SourceProductID:  dto.SourceProductID,
		Thumbnail:        dto.Thumbnail,
		Price:            dto.Price,
		UnitSize:         dto.UnitSize,
		UnitFormat:       dto.UnitFormat,
		UnitPricePerUnit: dto.UnitPricePerUnit,
		IsApproxSize:     dto.IsApproxSize,
		CreatedAt:        dto.CreatedAt,
		UpdatedAt:        dto.UpdatedAt,
	}
}

func (l List) Summary() contracts.ListSummary {
	return contracts.ListSummary{
		ID:        l.ID,
		Title:     l.Title,
		Status:    string(l.Status),
		UpdatedAt: l.UpdatedAt,
	}
}

func (l List) ItemDTOs() []contracts.ListItemDTO {
	out := make([]contracts.ListItemDTO, 0, len(l.Items))
	for _, item := range l.Items {
		out = append(out, item.DTO())
	}
	return out
}
