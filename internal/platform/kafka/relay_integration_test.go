//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"starline/internal/audit"
	"starline/internal/audit/store/record"
	"starline/internal/platform/config"
	id "starline/pkg/domain"
	"starline/pkg/testutil/containers"
)

func TestRelayDrainsOutboxToKafka(t *testing.T) {
	const topic = "starline.audit.records.test"

	pg := containers.NewPostgresContainer(t)
	rp := containers.NewRedpandaContainer(t, topic)
	ctx := context.Background()

	producer, err := NewProducer(config.KafkaConfig{
		Brokers: []string{rp.Broker},
		Topic:   topic,
	})
	require.NoError(t, err)
	require.NotNil(t, producer)
	t.Cleanup(producer.Close)

	store := record.NewPostgresStore(pg.DB)
	tenantID, err := id.ParseTenantID(uuid.NewString())
	require.NoError(t, err)

	for range 3 {
		status := 200
		require.NoError(t, store.Insert(ctx, &audit.Record{
			ID:             id.NewRecordID(),
			TenantID:       tenantID,
			Action:         audit.ActionCreate,
			ResourceType:   "client",
			Classification: audit.ClassificationGeneral,
			ResponseStatus: &status,
		}))
	}

	relay := NewRelay(pg.DB, producer, RelayWithBatchSize(10))
	published, err := relay.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, published)

	var remaining int
	require.NoError(t, pg.DB.QueryRowContext(ctx, `SELECT count(*) FROM outbox`).Scan(&remaining))
	assert.Zero(t, remaining)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	consumed := 0
	deadline := time.Now().Add(15 * time.Second)
	for consumed < 3 && time.Now().Before(deadline) {
		pollCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		fetches := consumer.PollFetches(pollCtx)
		cancel()
		fetches.EachRecord(func(r *kgo.Record) {
			assert.Equal(t, tenantID.String(), string(r.Key))
			var payload map[string]any
			assert.NoError(t, json.Unmarshal(r.Value, &payload))
			assert.Equal(t, "create", payload["action"])
			consumed++
		})
	}
	assert.Equal(t, 3, consumed)

	// An empty outbox drains to zero without error.
	published, err = relay.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, published)
}
