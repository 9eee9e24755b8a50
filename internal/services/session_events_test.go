package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyforge/internal/models"
)

func TestSessionEventBus(t *testing.T) {
	bus := NewSessionEventBus()

	a := bus.Subscribe("u1", "tab-a", 4)
	b := bus.Subscribe("u1", "tab-b", 4)
	other := bus.Subscribe("u2", "tab-c", 4)
	assert.Equal(t, 2, bus.SubscriberCount("u1"))

	event := models.SessionEvent{Type: models.SessionSignedIn, Session: verifiedSession("u1")}
	bus.Publish("u1", event)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, event, <-a)
	assert.Equal(t, event, <-b)
	assert.Len(t, other, 0)

	bus.Unsubscribe("u1", "tab-a")
	bus.Publish("u1", models.SessionEvent{Type: models.SessionSignedOut})
	assert.Len(t, a, 0)
	assert.Len(t, b, 1)

	bus.Unsubscribe("u1", "tab-b")
	assert.Equal(t, 0, bus.SubscriberCount("u1"))

	// no subscribers: dropped without blocking
	bus.Publish("u1", event)
}

func TestSessionEventBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewSessionEventBus()
	ch := bus.Subscribe("u1", "slow", 1)

	bus.Publish("u1", models.SessionEvent{Type: models.SessionSignedIn})
	bus.Publish("u1", models.SessionEvent{Type: models.SessionTokenRefreshed})

	require.Len(t, ch, 1)
	assert.Equal(t, models.SessionSignedIn, (<-ch).Type)
}
