package matcher

import (
	"slices"
	"strings"

	"trade_engine/internal/domain/entity"
)

// ItemIndex maps normalized item names to platform ids.
type ItemIndex struct {
	byName map[string]int64
	byID   map[int64]entity.Valuation
}

func NewItemIndex(feed []entity.Valuation) *ItemIndex {
	idx := &ItemIndex{
		byName: make(map[string]int64, len(feed)),
		byID:   make(map[int64]entity.Valuation, len(feed)),
	}

	for _, v := range feed {
		if v.ID <= 0 {
			continue
		}
		idx.byID[v.ID] = v

		name := normalizeName(v.Name)
		if name == "" {
			continue
		}
		if _, dup := idx.byName[name]; !dup {
			idx.byName[name] = v.ID
		}
	}

	return idx
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (x *ItemIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.byID)
}

func (x *ItemIndex) Lookup(id int64) (entity.Valuation, bool) {
	if x == nil {
		return entity.Valuation{}, false
	}
	v, ok := x.byID[id]
	return v, ok
}

// Resolve returns the ascending positive ids of items. Items without an id are
// looked up by name; unknown names are dropped.
func (x *ItemIndex) Resolve(items []entity.Item) []int64 {
	ids := make([]int64, 0, len(items))

	for _, item := range items {
		id := item.ID
		if id <= 0 && x != nil && item.Name != "" {
			id = x.byName[normalizeName(item.Name)]
		}
		if id > 0 {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}
