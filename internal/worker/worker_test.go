package worker

import (
	"context"
	"encoding/json"
	"testing"

	"stockd/internal/broker"
	"stockd/internal/models"
	"stockd/internal/realtime"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessage_RelaysToHub(t *testing.T) {
	hub := realtime.NewHub(4)
	sub := hub.Subscribe("tenant-a")
	defer sub.Close()

	w := NewNotificationWorker(nil, hub)

	body, err := json.Marshal(broker.NewNotification("tenant-a", models.EventStockMovement, models.StockMovementEvent{
		ProductID:  "p1",
		VariantSKU: "A",
		Quantity:   -3,
		Type:       models.MovementSale,
	}))
	require.NoError(t, err)

	require.NoError(t, w.HandleMessage(context.Background(), kafka.Message{Key: []byte("tenant-a"), Value: body}))

	n := <-sub.C()
	assert.Equal(t, models.EventStockMovement, n.Event)
	assert.Equal(t, "tenant-a", n.TenantID)
}

func TestHandleMessage_RejectsGarbage(t *testing.T) {
	w := NewNotificationWorker(nil, realtime.NewHub(1))
	assert.Error(t, w.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
}
