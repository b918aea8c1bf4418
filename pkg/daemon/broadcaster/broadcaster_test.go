package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_Subscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("before", "after")
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.True(t, sub.Projects["before"])
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_Notify_AllProjects(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	b.Notify(EventUploaded, "web-01")

	select {
	case event := <-sub.Events:
		assert.Equal(t, EventUploaded, event.Type)
		assert.Equal(t, "web-01", event.ProjectID)
		assert.False(t, event.Time.IsZero())
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
	}
}

func TestBroadcaster_Notify_FiltersByProject(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("before")
	b.Notify(EventDeleted, "after")

	select {
	case <-sub.Events:
		t.Fatal("should not receive event for another project")
	case <-time.After(50 * time.Millisecond):
	}

	b.Notify(EventReclaimed, "before")
	event := <-sub.Events
	assert.Equal(t, EventReclaimed, event.Type)
}

func TestBroadcaster_Notify_DropsWhenFull(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	for i := 0; i < cap(sub.Events)+10; i++ {
		b.Notify(EventUploaded, "p")
	}
	assert.Len(t, sub.Events, cap(sub.Events))
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	b.Unsubscribe(sub.ID)

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Close()

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Nil(t, b.Subscribe())
	b.Notify(EventUploaded, "p")
	b.Close()
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "uploaded", EventUploaded.String())
	assert.Equal(t, "deleted", EventDeleted.String())
	assert.Equal(t, "reclaimed", EventReclaimed.String())
	assert.Equal(t, "unknown", EventType(9).String())
}
