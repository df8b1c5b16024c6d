package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/mocks"
)

func TestRelayPublisher_ForwardsJobEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPushTransport(ctrl)
	publisher := mocks.NewMockJobEventPublisher(ctrl)
	metrics := newCountingSink()

	handlers := make(chan core.PushHandler, 1)
	source.EXPECT().Connect(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, h core.PushHandler) error {
			handlers <- h
			return errors.New("hub unavailable")
		})
	source.EXPECT().Watch(gomock.Any(), model.JobMonitoringFilter{}).Return(nil)
	source.EXPECT().Close().Return(nil)

	published := make(chan model.JobSummary, 4)
	gomock.InOrder(
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, s model.JobSummary) error {
				published <- s
				return nil
			}),
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis down")),
	)

	relay := NewRelayPublisher(RelayPublisherOptions{
		Source:    source,
		Publisher: publisher,
		Config:    RelayPublisherConfig{Metrics: metrics},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	var h core.PushHandler
	select {
	case h = <-handlers:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not connect")
	}
	assert.Same(t, relay, h)

	h.HandleConnectionState(core.ConnectionConnected, nil)
	h.HandleJobMessage(json.RawMessage(`{"jobId":"J1","jobType":"RefreshFundingJob","runningStatus":"InProgress","lastUpdated":"2025-06-02T08:00:00Z"}`))
	h.HandleJobMessage(json.RawMessage(`{"runningStatus":"InProgress"}`))
	h.HandleJobMessage(json.RawMessage(`not json`))
	h.HandleJobMessage(json.RawMessage(`{"jobId":"J2","runningStatus":"Queued","lastUpdated":"2025-06-02T08:00:00Z"}`))

	select {
	case s := <-published:
		assert.Equal(t, "J1", s.JobID)
		assert.Equal(t, model.JobTypeRefreshFunding, s.JobType)
	case <-time.After(2 * time.Second):
		t.Fatal("job event was not published")
	}

	assert.Eventually(t, func() bool {
		return metrics.get("jobwatch.relay.event:malformed") == 2 &&
			metrics.get("jobwatch.relay.event:error") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), metrics.get("jobwatch.relay.event:success"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayPublisher_DropsWhenQueueFull(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := newCountingSink()
	relay := NewRelayPublisher(RelayPublisherOptions{
		Source:    mocks.NewMockPushTransport(ctrl),
		Publisher: mocks.NewMockJobEventPublisher(ctrl),
		Config:    RelayPublisherConfig{Metrics: metrics, QueueSize: 1},
	})

	relay.HandleJobMessage(json.RawMessage(`{"jobId":"J1"}`))
	relay.HandleJobMessage(json.RawMessage(`{"jobId":"J2"}`))
	assert.Equal(t, int64(1), metrics.get("jobwatch.relay.event:dropped"))
}

func TestNewRelayPublisher_RequiresCollaborators(t *testing.T) {
	ctrl := gomock.NewController(t)
	assert.Panics(t, func() {
		NewRelayPublisher(RelayPublisherOptions{Publisher: mocks.NewMockJobEventPublisher(ctrl)})
	})
	assert.Panics(t, func() {
		NewRelayPublisher(RelayPublisherOptions{Source: mocks.NewMockPushTransport(ctrl)})
	})
}
