package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-indexer/internal/config"
)

func runWithNATS(t *testing.T, fn func(t *testing.T, s *server.Server, url string)) {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	fn(t, s, s.ClientURL())
}

func TestNewNATSPublisher_Validation(t *testing.T) {
	_, err := NewNATSPublisher(nil)
	assert.EqualError(t, err, "nats config is required")

	_, err = NewNATSPublisher(&config.NATSConfig{})
	assert.EqualError(t, err, "nats url is required")
}

func TestNATSPublisher_NilConnection(t *testing.T) {
	p := &NATSPublisher{}
	assert.False(t, p.Ready())
	assert.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), "x", nil), nats.ErrConnectionClosed)
}

func TestNATSPublisher_PublishUpdate(t *testing.T) {
	runWithNATS(t, func(t *testing.T, s *server.Server, url string) {
		p, err := NewNATSPublisher(&config.NATSConfig{URL: url})
		require.NoError(t, err)
		defer p.Close()
		assert.True(t, p.Ready())

		sub, err := nats.Connect(url)
		require.NoError(t, err)
		defer sub.Close()

		msgs := make(chan *nats.Msg, 1)
		_, err = sub.ChanSubscribe("stele.challenge", msgs)
		require.NoError(t, err)
		require.NoError(t, sub.Flush())

		update := EntityUpdate{Kind: "challenge", ID: "7", EventKey: "0xabc", EventName: "Create", BlockNumber: 12}
		require.NoError(t, PublishUpdate(context.Background(), p, "stele.", update))

		select {
		case m := <-msgs:
			var got EntityUpdate
			require.NoError(t, json.Unmarshal(m.Data, &got))
			assert.Equal(t, update, got)
		case <-time.After(2 * time.Second):
			t.Fatal("no message received")
		}
	})
}

func TestNATSPublisher_CloseIdempotent(t *testing.T) {
	runWithNATS(t, func(t *testing.T, s *server.Server, url string) {
		p, err := NewNATSPublisher(&config.NATSConfig{URL: url})
		require.NoError(t, err)

		assert.NoError(t, p.Close())
		assert.NoError(t, p.Close())
		assert.False(t, p.Ready())
	})
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "investor", Subject("", "investor"))
	assert.Equal(t, "stele.investor", Subject("stele", "investor"))
	assert.Equal(t, "stele.investor", Subject("stele.", "investor"))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), "a", []byte("b")))
	assert.NoError(t, p.Close())
}
