package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notetree/notetree/pkg/models"
)

func TestPublishFansOutInOrder(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	defer b.Close()

	sub1 := b.Subscribe(8)
	sub2 := b.Subscribe(8)

	page := &models.Page{ID: models.NewPageID(), Title: "A", Slug: "a"}
	blockID := models.NewBlockID()
	b.Publish(PageCreated(page), BlockDeleted(blockID, page.ID))

	for _, sub := range []*Subscriber{sub1, sub2} {
		ev := <-sub.Events()
		assert.Equal(t, EventPageCreated, ev.Type)
		require.NotNil(t, ev.Page)
		assert.Equal(t, page.ID, ev.Page.ID)

		ev = <-sub.Events()
		assert.Equal(t, EventBlockDeleted, ev.Type)
		require.NotNil(t, ev.BlockID)
		assert.Equal(t, blockID, *ev.BlockID)
	}
}

func TestSlowSubscriberIsPruned(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	defer b.Close()

	slow := b.Subscribe(1)
	healthy := b.Subscribe(8)
	require.Equal(t, 2, b.SubscriberCount())

	// First event fills the slow subscriber's buffer, second overflows it.
	b.Publish(PageDeleted(models.NewPageID()))
	b.Publish(PageDeleted(models.NewPageID()))

	assert.Equal(t, 1, b.SubscriberCount())

	// The pruned subscriber's channel is closed after draining.
	<-slow.Events()
	_, open := <-slow.Events()
	assert.False(t, open)

	// The healthy subscriber received everything.
	<-healthy.Events()
	ev, open := <-healthy.Events()
	require.True(t, open)
	assert.Equal(t, EventPageDeleted, ev.Type)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	defer b.Close()

	sub := b.Subscribe(0)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	// Publishing after removal does not panic or deliver.
	b.Publish(PageDeleted(models.NewPageID()))
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	sub := b.Subscribe(1)
	b.Close()

	b.Publish(PageDeleted(models.NewPageID()))
	_, open := <-sub.Events()
	assert.False(t, open)
}
