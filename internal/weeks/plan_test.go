package weeks

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audit-portal/portal-backend/pkg/dates"
)

func withSequentialIDs(t *testing.T) {
	t.Helper()
	n := 0
	prev := newItemID
	newItemID = func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	}
	t.Cleanup(func() { newItemID = prev })
}

func TestNewPlanForRangeAndBasicEdits(t *testing.T) {
	withSequentialIDs(t)
	start, end := dates.MustParse("2024-01-01"), dates.MustParse("2024-01-02")

	plan := NewPlanForRange(start, end)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, plan.Dates())
	assert.Empty(t, plan["2024-01-01"].Tasks)
	assert.Empty(t, plan["2024-01-02"].Tasks)

	plan, item := plan.AddItem(start, PlanItem{Type: ItemTask, Content: "Review ledger"})
	require.Len(t, plan["2024-01-01"].Tasks, 1)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, 0, item.EventCount)

	plan, outcome := plan.DeleteDay(end)
	assert.Equal(t, DayDeleted, outcome)
	assert.Equal(t, []string{"2024-01-01"}, plan.Dates())
}

func TestAddDayExistingLeavesItems(t *testing.T) {
	day := dates.MustParse("2024-02-05")
	plan := NewPlanForRange(day, day)
	plan, _ = plan.AddItem(day, PlanItem{ID: "a", Type: ItemMeeting, Content: "Kickoff"})

	again, outcome := plan.AddDay(day)
	assert.Equal(t, DayAlreadyExists, outcome)
	assert.Equal(t, plan, again)
	assert.Equal(t, "a", again["2024-02-05"].Tasks[0].ID)
}

func TestMutationsAreCopyOnWrite(t *testing.T) {
	day := dates.MustParse("2024-03-01")
	original := NewPlanForRange(day, day.AddDays(1))
	original, _ = original.AddItem(day, PlanItem{ID: "a", Type: ItemTask, Content: "first"})
	original, _ = original.AddItem(day, PlanItem{ID: "b", Type: ItemTask, Content: "second"})
	original, _ = original.AddItem(day, PlanItem{ID: "c", Type: ItemTask, Content: "third"})

	snapshot := original.Clone()

	updated, outcome := original.UpdateItem(PlanItem{ID: "b", Type: ItemTask, Content: "edited"})
	assert.Equal(t, ItemUpdated, outcome)
	assert.Equal(t, snapshot, original)

	ids := func(p Plan) []string {
		var out []string
		for _, it := range p["2024-03-01"].Tasks {
			out = append(out, it.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(updated))
	assert.Equal(t, "edited", updated["2024-03-01"].Tasks[1].Content)

	deleted, outcome := updated.DeleteItem(day, "a")
	assert.Equal(t, ItemDeleted, outcome)
	assert.Equal(t, []string{"b", "c"}, ids(deleted))
	assert.Equal(t, []string{"a", "b", "c"}, ids(updated))
	assert.Equal(t, updated["2024-03-01"].Tasks[2], deleted["2024-03-01"].Tasks[1])
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	day := dates.MustParse("2024-03-01")
	plan := NewPlanForRange(day, day)

	_, outcome := plan.UpdateItem(PlanItem{ID: "ghost", Type: ItemTask})
	assert.Equal(t, ItemNotFound, outcome)

	_, outcome = plan.DeleteItem(day, "ghost")
	assert.Equal(t, ItemNotFound, outcome)

	_, outcome = plan.DeleteItem(day.AddDays(3), "ghost")
	assert.Equal(t, ItemNotFound, outcome)

	_, outcome = plan.DeleteDay(day.AddDays(3))
	assert.Equal(t, DayNotFound, outcome)
}

func TestUpdateItemPreservesEventCount(t *testing.T) {
	day := dates.MustParse("2024-03-01")
	plan := NewPlanForRange(day, day)
	plan, _ = plan.AddItem(day, PlanItem{ID: "a", Type: ItemTask, Content: "x"})
	plan, _ = plan.AdjustEventCount("a", 3)

	plan, _ = plan.UpdateItem(PlanItem{ID: "a", Type: ItemTask, Content: "y", EventCount: 99})
	_, item, ok := plan.FindItem("a")
	require.True(t, ok)
	assert.Equal(t, 3, item.EventCount)
}

func TestAdjustEventCountClampsAtZero(t *testing.T) {
	day := dates.MustParse("2024-03-01")
	plan := NewPlanForRange(day, day)
	plan, _ = plan.AddItem(day, PlanItem{ID: "a", Type: ItemTask, Content: "x"})

	plan, outcome := plan.AdjustEventCount("a", -1)
	assert.Equal(t, ItemUpdated, outcome)
	_, item, _ := plan.FindItem("a")
	assert.Equal(t, 0, item.EventCount)

	_, outcome = plan.AdjustEventCount("missing", 1)
	assert.Equal(t, ItemNotFound, outcome)
}

func TestApplyEventCounts(t *testing.T) {
	day := dates.MustParse("2024-03-01")
	plan := NewPlanForRange(day, day)
	plan, _ = plan.AddItem(day, PlanItem{ID: "a", Type: ItemTask, Content: "x"})
	plan, _ = plan.AddItem(day, PlanItem{ID: "b", Type: ItemTask, Content: "y"})
	plan, _ = plan.AdjustEventCount("b", 4)

	out, changed := plan.ApplyEventCounts(map[string]int{"a": 2})
	assert.True(t, changed)
	_, a, _ := out.FindItem("a")
	_, b, _ := out.FindItem("b")
	assert.Equal(t, 2, a.EventCount)
	assert.Equal(t, 0, b.EventCount)

	_, changed = out.ApplyEventCounts(map[string]int{"a": 2})
	assert.False(t, changed)
}

func TestItemPosition(t *testing.T) {
	first, second := dates.MustParse("2024-03-01"), dates.MustParse("2024-03-02")
	plan := NewPlanForRange(first, second)
	plan, _ = plan.AddItem(second, PlanItem{ID: "a", Type: ItemTask, Content: "x"})
	plan, _ = plan.AddItem(second, PlanItem{ID: "b", Type: ItemTask, Content: "y"})

	day, index, ok := plan.ItemPosition("b")
	require.True(t, ok)
	assert.Equal(t, "2024-03-02", day)
	assert.Equal(t, 1, index)

	_, _, ok = plan.ItemPosition("missing")
	assert.False(t, ok)
}

func TestMergeRange(t *testing.T) {
	plan := NewPlanForRange(dates.MustParse("2024-01-01"), dates.MustParse("2024-01-03"))
	plan, _ = plan.AddItem(dates.MustParse("2024-01-01"), PlanItem{ID: "drop", Type: ItemTask, Content: "x"})
	plan, _ = plan.AddItem(dates.MustParse("2024-01-03"), PlanItem{ID: "keep", Type: ItemTask, Content: "y"})

	merged := plan.MergeRange(dates.MustParse("2024-01-02"), dates.MustParse("2024-01-05"))
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, merged.Dates())
	assert.Equal(t, "keep", merged["2024-01-03"].Tasks[0].ID)
	_, _, found := merged.FindItem("drop")
	assert.False(t, found)
	assert.Empty(t, merged.OutOfRange(dates.MustParse("2024-01-02"), dates.MustParse("2024-01-05")))
}

func TestOutOfRange(t *testing.T) {
	plan := Plan{"2024-01-01": {}, "2024-02-01": {}, "garbage": {}}
	bad := plan.OutOfRange(dates.MustParse("2024-01-01"), dates.MustParse("2024-01-07"))
	assert.Equal(t, []string{"2024-02-01", "garbage"}, bad)
}

func TestStats(t *testing.T) {
	day := dates.MustParse("2024-03-01")
	plan := NewPlanForRange(day, day)
	plan, _ = plan.AddItem(day, PlanItem{ID: "a", Type: ItemTask, Content: "x"})
	plan, _ = plan.AddItem(day, PlanItem{ID: "b", Type: ItemTask, Content: "y"})
	plan, _ = plan.AddItem(day, PlanItem{ID: "c", Type: ItemTask, Content: "z"})
	plan, _ = plan.AdjustEventCount("a", 1)

	s := plan.Stats()
	assert.Equal(t, 3, s.TotalItems)
	assert.Equal(t, 1, s.ItemsWithEvents)
	assert.Equal(t, 2, s.ItemsNoEvents)
	assert.Equal(t, 33, s.ProgressPercent)
	assert.Equal(t, 0, Plan{}.Stats().ProgressPercent)
}

func TestPlanItemJSON(t *testing.T) {
	raw := `{"id":"m1","type":"meeting","content":"Sync","completed":false,"event_count":2,
		"data":{"time":"10:00","location":"HQ","participants":["CFO","CEO"]}}`

	var item PlanItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	meeting, ok := item.Data.(MeetingData)
	require.True(t, ok)
	assert.Equal(t, "HQ", meeting.Location)
	assert.Equal(t, []string{"CFO", "CEO"}, meeting.Participants)

	out, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","type":"meeting","content":"Sync","completed":false,"event_count":2,
		"data":{"time":"10:00","location":"HQ","participants":["CFO","CEO"]}}`, string(out))
}

func TestPlanItemJSONDefaultsAndErrors(t *testing.T) {
	var item PlanItem
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t1","type":"task","content":"x"}`), &item))
	assert.Equal(t, TaskData{}, item.Data)

	err := json.Unmarshal([]byte(`{"id":"t2","type":"lunch","content":"x"}`), &item)
	assert.ErrorIs(t, err, ErrUnknownItemType)

	_, err = json.Marshal(PlanItem{ID: "x", Type: ItemTask, Data: MeetingData{}})
	assert.Error(t, err)
}

func TestPlanScan(t *testing.T) {
	var p Plan
	require.NoError(t, p.Scan([]byte(`{"2024-01-01":{"tasks":[{"id":"a","type":"observation","content":"Floor","data":{"process_observed":"Picking"}}]}}`)))
	_, item, ok := p.FindItem("a")
	require.True(t, ok)
	assert.Equal(t, "Picking", item.Data.(ObservationData).ProcessObserved)

	require.NoError(t, p.Scan(nil))
	assert.Empty(t, p)
}
