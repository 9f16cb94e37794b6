package realtime

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func taskFilter(t *testing.T, taskID string) Filter {
	t.Helper()
	f, err := ParseFilter(TableEvents, "task_id=eq."+taskID)
	require.NoError(t, err)
	return f
}

func eventChange(typ ChangeType, id, taskID string, source Source, at time.Time) Change {
	return Change{Table: TableEvents, Type: typ, ID: id, TaskID: taskID, Source: source, At: at}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(TableEvents, "task_id=eq.abc")
	require.NoError(t, err)
	assert.Equal(t, Filter{Table: TableEvents, Column: "task_id", Value: "abc"}, f)
	assert.Equal(t, "events:task_id=eq.abc", f.String())

	f, err = ParseFilter(TableWeeks, "")
	require.NoError(t, err)
	assert.Equal(t, "weeks", f.String())

	for _, bad := range [][2]string{
		{"users", ""},
		{TableEvents, "task_id"},
		{TableEvents, "task_id=neq.x"},
		{TableEvents, "task_id=eq."},
		{TableEvents, "content=eq.x"},
	} {
		_, err := ParseFilter(bad[0], bad[1])
		assert.Error(t, err, "%s %s", bad[0], bad[1])
	}
}

func TestFilterMatches(t *testing.T) {
	f := taskFilter(t, "t1")
	assert.True(t, f.Matches(Change{Table: TableEvents, TaskID: "t1"}))
	assert.False(t, f.Matches(Change{Table: TableEvents, TaskID: "t2"}))
	assert.False(t, f.Matches(Change{Table: TableWeeks, TaskID: "t1"}))

	all := Filter{Table: TableWeeks}
	assert.True(t, all.Matches(Change{Table: TableWeeks, ID: "w"}))
}

func TestFeedDeduplicatesDoubleDelivery(t *testing.T) {
	feed := NewFeed(taskFilter(t, "t1"))
	now := time.Now()

	assert.True(t, feed.Apply(eventChange(Insert, "e1", "t1", SourceLocal, now)))
	assert.False(t, feed.Apply(eventChange(Insert, "e1", "t1", SourceRemote, now.Add(20*time.Millisecond))))
	assert.True(t, feed.Apply(eventChange(Insert, "e2", "t1", SourceRemote, now.Add(time.Second))))
	assert.False(t, feed.Apply(eventChange(Insert, "e3", "t2", SourceLocal, now)))

	items := feed.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "e1", items[0].ID)
	assert.Equal(t, SourceRemote, items[0].Source, "confirmed copy replaces the optimistic one")
	assert.Equal(t, "e2", items[1].ID)

	assert.True(t, feed.Apply(eventChange(Delete, "e1", "t1", SourceLocal, now.Add(2*time.Second))))
	assert.False(t, feed.Apply(eventChange(Delete, "e1", "t1", SourceRemote, now.Add(2*time.Second))))
	require.Len(t, feed.Items(), 1)

	// late echo of an insert for a deleted row
	assert.False(t, feed.Apply(eventChange(Insert, "e1", "t1", SourceRemote, now.Add(3*time.Second))))
}

func TestFeedUpdateEcho(t *testing.T) {
	feed := NewFeed(Filter{Table: TableWeeks})
	now := time.Now()
	update := func(source Source, at time.Time) Change {
		return Change{Table: TableWeeks, Type: Update, ID: "w1", Source: source, At: at}
	}

	assert.True(t, feed.Apply(update(SourceLocal, now)))
	assert.False(t, feed.Apply(update(SourceRemote, now.Add(50*time.Millisecond))))
	assert.True(t, feed.Apply(update(SourceLocal, now.Add(time.Second))), "a second local write is new")
	assert.True(t, feed.Apply(update(SourceRemote, now.Add(10*time.Second))), "outside the echo window")
}

func weekUpdate(source Source, version int, at time.Time) Change {
	return Change{
		Table:  TableWeeks,
		Type:   Update,
		ID:     "w1",
		Record: json.RawMessage(fmt.Sprintf(`{"id":"w1","version":%d}`, version)),
		Source: source,
		At:     at,
	}
}

func TestFeedUpdateMatchesOnVersion(t *testing.T) {
	feed := NewFeed(Filter{Table: TableWeeks})
	now := time.Now()

	assert.True(t, feed.Apply(weekUpdate(SourceLocal, 2, now)))
	assert.False(t, feed.Apply(weekUpdate(SourceRemote, 2, now.Add(30*time.Millisecond))), "trigger copy of our write")
	assert.True(t, feed.Apply(weekUpdate(SourceRemote, 4, now.Add(time.Second))), "write made by another process")
	assert.True(t, feed.Apply(weekUpdate(SourceLocal, 5, now.Add(1100*time.Millisecond))))
	assert.False(t, feed.Apply(weekUpdate(SourceRemote, 5, now.Add(1200*time.Millisecond))))

	items := feed.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "v5", items[0].Token())
}

func TestChangeToken(t *testing.T) {
	local := Change{Record: json.RawMessage(`{"updated_at":"2026-10-14T10:00:00.123456Z"}`)}
	remote := Change{Record: json.RawMessage(`{"updated_at":"2026-10-14T12:00:00.123456+02:00"}`)}
	assert.NotEmpty(t, local.Token())
	assert.Equal(t, local.Token(), remote.Token())

	assert.Equal(t, "v3", Change{OldRecord: json.RawMessage(`{"version":3}`)}.Token())
	assert.Empty(t, Change{}.Token())
	assert.Empty(t, Change{Record: json.RawMessage(`{"title":"x"}`)}.Token())
}

func TestFeedForgetsOldEntries(t *testing.T) {
	feed := NewFeed(Filter{Table: TableWeeks})
	start := time.Now()

	for i := 0; i < 100; i++ {
		c := weekUpdate(SourceLocal, i+1, start.Add(time.Duration(i)*time.Millisecond))
		c.ID = fmt.Sprintf("w%d", i)
		require.True(t, feed.Apply(c))
	}
	assert.Equal(t, 200, feed.size())

	later := weekUpdate(SourceRemote, 1, start.Add(time.Minute))
	later.ID = "fresh"
	assert.True(t, feed.Apply(later))
	assert.Equal(t, 2, feed.size(), "only the fresh row and its token remain")
}

func TestBrokerRoutesByFilter(t *testing.T) {
	b := NewBroker(4, zap.NewNop())
	t1 := b.Subscribe(taskFilter(t, "t1"))
	t2 := b.Subscribe(taskFilter(t, "t2"))
	defer t1.Unsubscribe()
	defer t2.Unsubscribe()

	b.Publish(eventChange(Insert, "e1", "t1", SourceLocal, time.Now()))

	select {
	case c := <-t1.C:
		assert.Equal(t, "e1", c.ID)
	default:
		t.Fatal("t1 subscriber got nothing")
	}
	select {
	case c := <-t2.C:
		t.Fatalf("t2 subscriber got %v", c)
	default:
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(1, zap.NewNop())
	sub := b.Subscribe(taskFilter(t, "t1"))
	defer sub.Unsubscribe()

	now := time.Now()
	b.Publish(eventChange(Insert, "e1", "t1", SourceLocal, now))
	b.Publish(eventChange(Insert, "e2", "t1", SourceLocal, now))

	assert.Equal(t, "e1", (<-sub.C).ID)
	select {
	case c := <-sub.C:
		t.Fatalf("expected drop, got %v", c)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(1, zap.NewNop())
	sub := b.Subscribe(Filter{Table: TableProjects})
	assert.Equal(t, 1, b.Subscribers())

	sub.Unsubscribe()
	sub.Unsubscribe()
	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())

	// publishing after unsubscribe must not panic
	b.Publish(Change{Table: TableProjects, Type: Insert, ID: "p"})
}

func TestParseNotification(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := ParseNotification(`{"table":"events","type":"INSERT","id":"e1","project_id":"p1","week_id":"w1","task_id":"t1","record":{"content":"hi"}}`, at)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, c.Source)
	assert.Equal(t, at, c.At)
	assert.Equal(t, "t1", c.TaskID)
	assert.JSONEq(t, `{"content":"hi"}`, string(c.Record))

	c, err = ParseNotification(`{"table":"projects","type":"DELETE","id":"p9"}`, at)
	require.NoError(t, err)
	assert.Equal(t, "p9", c.ProjectID)

	for _, bad := range []string{
		`not json`,
		`{"table":"users","type":"INSERT","id":"x"}`,
		`{"table":"events","type":"TRUNCATE","id":"x"}`,
		`{"table":"events","type":"INSERT"}`,
	} {
		_, err := ParseNotification(bad, at)
		assert.Error(t, err, bad)
	}
}

func TestLocalChangeKeepsOldRecordOnDelete(t *testing.T) {
	c := LocalChange(TableEvents, Delete, "e1", Scope{TaskID: "t1"}, map[string]string{"content": "bye"})
	assert.Equal(t, SourceLocal, c.Source)
	assert.Empty(t, c.Record)
	assert.JSONEq(t, `{"content":"bye"}`, string(c.OldRecord))
}
