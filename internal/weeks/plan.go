package weeks

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"audit-portal/portal-backend/pkg/dates"
)

// Outcome reports what a plan mutation did
type Outcome string

const (
	DayAdded         Outcome = "day_added"
	DayAlreadyExists Outcome = "day_already_exists"
	DayDeleted       Outcome = "day_deleted"
	DayNotFound      Outcome = "day_not_found"
	ItemAdded        Outcome = "item_added"
	ItemUpdated      Outcome = "item_updated"
	ItemDeleted      Outcome = "item_deleted"
	ItemNotFound     Outcome = "item_not_found"
)

// newItemID generates plan item identifiers; replaced in tests
var newItemID = uuid.NewString

// All mutations below are copy-on-write: the receiver is never modified and
// untouched days share nothing with the result.

// NewPlanForRange returns one empty day for every date in [start, end]
func NewPlanForRange(start, end dates.Date) Plan {
	p := Plan{}
	for _, d := range dates.Range(start, end) {
		p[d.String()] = DayPlan{Tasks: []PlanItem{}}
	}
	return p
}

// Clone deep-copies the day lists of the plan
func (p Plan) Clone() Plan {
	out := make(Plan, len(p))
	for k, day := range p {
		tasks := make([]PlanItem, len(day.Tasks))
		copy(tasks, day.Tasks)
		out[k] = DayPlan{Tasks: tasks}
	}
	return out
}

// Dates returns the plan keys in ascending order
func (p Plan) Dates() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Items returns every item in date order, then position
func (p Plan) Items() []PlanItem {
	var out []PlanItem
	for _, k := range p.Dates() {
		out = append(out, p[k].Tasks...)
	}
	return out
}

// FindItem locates an item by id
func (p Plan) FindItem(id string) (string, PlanItem, bool) {
	for _, k := range p.Dates() {
		for _, item := range p[k].Tasks {
			if item.ID == id {
				return k, item, true
			}
		}
	}
	return "", PlanItem{}, false
}

// ItemPosition returns the day key and index of an item
func (p Plan) ItemPosition(id string) (string, int, bool) {
	for _, k := range p.Dates() {
		for i, item := range p[k].Tasks {
			if item.ID == id {
				return k, i, true
			}
		}
	}
	return "", 0, false
}

// OutOfRange lists keys that fall outside [start, end] or are not dates
func (p Plan) OutOfRange(start, end dates.Date) []string {
	var bad []string
	for _, k := range p.Dates() {
		d, err := dates.Parse(k)
		if err != nil || !d.Within(start, end) {
			bad = append(bad, k)
		}
	}
	return bad
}

// AddDay creates an empty day. An existing day is left untouched.
func (p Plan) AddDay(d dates.Date) (Plan, Outcome) {
	key := d.String()
	if _, ok := p[key]; ok {
		return p, DayAlreadyExists
	}
	out := p.Clone()
	out[key] = DayPlan{Tasks: []PlanItem{}}
	return out, DayAdded
}

// DeleteDay removes a day and its items. Events for those items are kept.
func (p Plan) DeleteDay(d dates.Date) (Plan, Outcome) {
	key := d.String()
	if _, ok := p[key]; !ok {
		return p, DayNotFound
	}
	out := p.Clone()
	delete(out, key)
	return out, DayDeleted
}

// AddItem appends item to the day, creating the day when absent. The item
// gets a fresh id when it has none and starts with no events.
func (p Plan) AddItem(d dates.Date, item PlanItem) (Plan, PlanItem) {
	if item.ID == "" {
		item.ID = newItemID()
	}
	item.EventCount = 0
	item.Completed = false
	if item.Data == nil {
		item.Data, _ = newItemData(item.Type)
	}

	out := p.Clone()
	key := d.String()
	day := out[key]
	if day.Tasks == nil {
		day.Tasks = []PlanItem{}
	}
	day.Tasks = append(day.Tasks, item)
	out[key] = day
	return out, item
}

// UpdateItem replaces the item with the same id in place. The stored
// event_count is kept since it is not client controlled.
func (p Plan) UpdateItem(item PlanItem) (Plan, Outcome) {
	key, existing, ok := p.FindItem(item.ID)
	if !ok {
		return p, ItemNotFound
	}
	item.EventCount = existing.EventCount
	if item.Data == nil {
		item.Data, _ = newItemData(item.Type)
	}

	out := p.Clone()
	tasks := out[key].Tasks
	for i := range tasks {
		if tasks[i].ID == item.ID {
			tasks[i] = item
			break
		}
	}
	return out, ItemUpdated
}

// DeleteItem removes the item from the given day
func (p Plan) DeleteItem(d dates.Date, id string) (Plan, Outcome) {
	key := d.String()
	day, ok := p[key]
	if !ok {
		return p, ItemNotFound
	}
	idx := -1
	for i, item := range day.Tasks {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p, ItemNotFound
	}

	out := p.Clone()
	tasks := out[key].Tasks
	out[key] = DayPlan{Tasks: append(tasks[:idx:idx], tasks[idx+1:]...)}
	return out, ItemDeleted
}

// AdjustEventCount adds delta to the item's event count, clamped at zero
func (p Plan) AdjustEventCount(id string, delta int) (Plan, Outcome) {
	key, existing, ok := p.FindItem(id)
	if !ok {
		return p, ItemNotFound
	}
	out := p.Clone()
	tasks := out[key].Tasks
	for i := range tasks {
		if tasks[i].ID == id {
			tasks[i].EventCount = max(existing.EventCount+delta, 0)
			break
		}
	}
	return out, ItemUpdated
}

// ApplyEventCounts sets every item's count from an aggregation keyed by item
// id. Items missing from counts get zero.
func (p Plan) ApplyEventCounts(counts map[string]int) (Plan, bool) {
	out := p.Clone()
	changed := false
	for k, day := range out {
		for i := range day.Tasks {
			n := counts[day.Tasks[i].ID]
			if day.Tasks[i].EventCount != n {
				day.Tasks[i].EventCount = n
				changed = true
			}
		}
		out[k] = day
	}
	return out, changed
}

// MergeRange fits the plan to new week dates: days still in range keep their
// items, new dates get empty days, days outside the range are dropped.
func (p Plan) MergeRange(start, end dates.Date) Plan {
	out := Plan{}
	for _, d := range dates.Range(start, end) {
		key := d.String()
		if day, ok := p[key]; ok {
			tasks := make([]PlanItem, len(day.Tasks))
			copy(tasks, day.Tasks)
			out[key] = DayPlan{Tasks: tasks}
			continue
		}
		out[key] = DayPlan{Tasks: []PlanItem{}}
	}
	return out
}

// Stats summarises activity across a plan
type Stats struct {
	TotalItems      int `json:"total_items"`
	ItemsWithEvents int `json:"items_with_events"`
	ItemsNoEvents   int `json:"items_without_events"`
	ProgressPercent int `json:"progress_percent"`
}

// Stats counts items and how many have at least one event
func (p Plan) Stats() Stats {
	var s Stats
	for _, day := range p {
		for _, item := range day.Tasks {
			s.TotalItems++
			if item.EventCount > 0 {
				s.ItemsWithEvents++
			}
		}
	}
	s.ItemsNoEvents = s.TotalItems - s.ItemsWithEvents
	if s.TotalItems > 0 {
		s.ProgressPercent = int(math.Round(float64(s.ItemsWithEvents) / float64(s.TotalItems) * 100))
	}
	return s
}
