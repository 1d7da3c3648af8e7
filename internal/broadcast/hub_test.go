package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labwatch/labwatch/internal/models"
	"github.com/labwatch/labwatch/pkg/logger"
)

func TestPublishNeverBlocks(t *testing.T) {
	h := NewHub(logger.Nop())

	evt := NewEvent("triggered", &models.Alert{RuleName: "cpu-hot"}, time.Now())
	require.NotEmpty(t, evt.ID)

	// Nothing is draining the queue; fill it to capacity.
	for i := 0; i < cap(h.events); i++ {
		assert.True(t, h.Publish(evt))
	}

	// A full queue drops the event instead of blocking the caller.
	assert.False(t, h.Publish(evt))
}

func TestEventsCarryDistinctIDs(t *testing.T) {
	a := NewEvent("triggered", nil, time.Now())
	b := NewEvent("resolved", nil, time.Now())
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "triggered", a.Type)
	assert.Equal(t, "resolved", b.Type)
}
