//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/quake-watch/internal/adapter/kafka"
	"github.com/couchcryptid/quake-watch/internal/adapter/kandilli"
	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/couchcryptid/quake-watch/internal/pipeline"
	"github.com/couchcryptid/quake-watch/internal/store"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-earthquakes"

const liveFeed = `{
  "status": true,
  "result": [
    {
      "earthquake_id": "GWfUsdpMlvJW",
      "provider": "kandilli",
      "title": "SINDIRGI (BALIKESIR)",
      "date": "2025.08.10 19:53:46",
      "mag": 6.1,
      "depth": 11,
      "geojson": {"type": "Point", "coordinates": [28.16, 39.2]},
      "location_properties": {"epiCenter": {"name": "Sındırgı"}},
      "created_at": 1754845000
    },
    {
      "earthquake_id": "hK2cQy9wT4aL",
      "provider": "kandilli",
      "title": "KORFEZ (KOCAELI)",
      "date": "2025.08.10 12:01:02",
      "mag": "2.4",
      "depth": 7,
      "geojson": {"type": "Point", "coordinates": [29.1, 40.8]},
      "created_at": 1754827262
    }
  ]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	kc, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("quake-watch-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = kc.Terminate(context.Background()) })

	brokers, err := kc.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

type publishedMessage struct {
	Quake   domain.Earthquake
	Key     string
	Headers map[string]string
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var eq domain.Earthquake
	require.NoError(t, json.Unmarshal(msg.Value, &eq), "unmarshal message")
	return publishedMessage{Quake: eq, Key: string(msg.Key), Headers: headers}
}

// TestRefreshCyclePublishesToKafka runs one live cycle (HTTP feed, SQLite
// store, Kafka subscriber) and reads the published records back.
func TestRefreshCyclePublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, liveFeed)
	}))
	defer feed.Close()

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "quakes.db"), logger, metrics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	publisher := kafka.NewPublisher(cfg, logger)
	t.Cleanup(func() { _ = publisher.Close() })

	src := kandilli.NewClient(kandilli.Options{LiveURL: feed.URL, ArchiveURL: feed.URL, Timeout: 5 * time.Second}, metrics, logger)
	coord := pipeline.New(
		pipeline.AppContext{Settings: config.NewSettingsStore(config.DefaultSettings()), Logger: logger},
		src,
		pipeline.NewNormalizer(nil, logger),
		st,
		pipeline.NewBroadcaster(logger, metrics, publisher),
		metrics,
	)

	res, ran := coord.RunCycle(ctx, pipeline.Live())
	require.True(t, ran)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Count)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	first := readPublished(ctx, t, consumer)
	second := readPublished(ctx, t, consumer)

	assert.Equal(t, "GWfUsdpMlvJW", first.Key, "newest record first")
	assert.InDelta(t, 6.1, first.Quake.Magnitude, 1e-9)
	assert.Equal(t, "Sındırgı", first.Quake.Epicenter())
	assert.Equal(t, "kandilli", first.Headers["provider"])
	assert.Equal(t, "2025-08-10T16:56:40Z", first.Headers["recorded_at"])

	assert.Equal(t, "hK2cQy9wT4aL", second.Key)
	assert.InDelta(t, 2.4, second.Quake.Magnitude, 1e-9, "string magnitude normalized")
	assert.Equal(t, "2.4", second.Headers["magnitude"])
}
