package clients_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	topics = clients.NewTopics("domain", "channel")
)

// respond answers every request for clientID by doubling the parameters.
func respond(t *testing.T, broker *mocks.Broker, clientID string, fail bool) {
	t.Helper()

	err := broker.Subscribe(context.Background(), topics.Requests(clientID), func(_ string, msg map[string]any) error {
		var req clients.Request
		if err := clients.Decode(msg, &req); err != nil {
			return err
		}

		resp := clients.Response{RequestID: req.RequestID, ClientID: clientID, Kind: req.Kind}
		switch {
		case fail:
			resp.Error = "out of memory"
		case req.Kind == clients.KindFit:
			ps, err := fl.DecodeParameters(req.Parameters)
			if err != nil {
				return err
			}
			for i := range ps {
				for j := range ps[i].Data {
					ps[i].Data[j] *= 2
				}
			}
			if resp.Parameters, err = fl.EncodeParameters(ps); err != nil {
				return err
			}
			resp.NumSamples = req.Config.BatchSize
		default:
			resp.Loss = 0.25
			resp.NumSamples = req.Config.EvalSteps
			resp.Metrics = map[string]float64{"accuracy": 0.9}
		}

		return broker.Publish(context.Background(), topics.Results(), resp)
	})
	require.NoError(t, err)
}

func TestTransportRoundTrip(t *testing.T) {
	ctx := context.Background()
	broker := mocks.NewBroker()
	mgr := clients.NewManager(clients.WithCallTimeout(time.Second))
	tr := clients.NewTransport(broker, topics, logger)
	require.NoError(t, tr.Start(ctx, mgr))

	require.NoError(t, broker.Publish(ctx, topics.Create(), clients.Announcement{
		ClientID:   "p1",
		Name:       "happy-turing",
		Status:     clients.StatusOnline,
		NumSamples: 80,
	}))
	broker.Wait()
	respond(t, broker, "p1", false)

	d, err := mgr.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "happy-turing", d.Name)
	assert.Equal(t, 80, d.NumSamples)

	proxy, err := mgr.Proxy("p1")
	require.NoError(t, err)

	res := proxy.Fit(ctx, params, fl.RoundConfig{Round: 1, BatchSize: 32})
	require.Equal(t, fl.Success, res.Status, res.Err)
	assert.Equal(t, 32, res.NumSamples)
	assert.Equal(t, []float64{2, 4}, res.Parameters[0].Data)

	res = proxy.Evaluate(ctx, params, fl.RoundConfig{EvalSteps: 5})
	require.Equal(t, fl.Success, res.Status, res.Err)
	assert.Equal(t, 0.25, res.Loss)
	assert.Equal(t, 5, res.NumSamples)
	assert.Equal(t, 0.9, res.Metrics["accuracy"])
}

func TestTransportRemoteErrorAndSilence(t *testing.T) {
	ctx := context.Background()
	broker := mocks.NewBroker()
	mgr := clients.NewManager(clients.WithCallTimeout(50 * time.Millisecond))
	tr := clients.NewTransport(broker, topics, logger)
	require.NoError(t, tr.Start(ctx, mgr))

	for _, id := range []string{"broken", "silent"} {
		_, err := mgr.Register(ctx, clients.Descriptor{ID: id}, tr.Client(id))
		require.NoError(t, err)
	}
	respond(t, broker, "broken", true)

	proxy, err := mgr.Proxy("broken")
	require.NoError(t, err)
	res := proxy.Fit(ctx, params, fl.RoundConfig{BatchSize: 1})
	assert.Equal(t, fl.Failed, res.Status)
	assert.Contains(t, res.Err, "out of memory")

	proxy, err = mgr.Proxy("silent")
	require.NoError(t, err)
	res = proxy.Fit(ctx, params, fl.RoundConfig{BatchSize: 1})
	assert.Equal(t, fl.TimedOut, res.Status)

	// A result arriving after the deadline is dropped without error.
	require.NoError(t, broker.Publish(ctx, topics.Results(), clients.Response{RequestID: "stale", ClientID: "silent"}))
	broker.Wait()
}

func TestTransportLiveness(t *testing.T) {
	ctx := context.Background()
	broker := mocks.NewBroker()
	mgr := clients.NewManager()
	tr := clients.NewTransport(broker, topics, logger)
	require.NoError(t, tr.Start(ctx, mgr))

	require.NoError(t, broker.Publish(ctx, topics.Alive(), clients.Announcement{ClientID: "late", Status: clients.StatusOnline}))
	broker.Wait()

	d, err := mgr.Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, clients.Available, d.State)

	require.NoError(t, broker.Publish(ctx, topics.Alive(), clients.Announcement{ClientID: "late", Status: clients.StatusOffline}))
	broker.Wait()

	d, err = mgr.Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, clients.Offline, d.State)

	require.NoError(t, broker.Publish(ctx, topics.Alive(), clients.Announcement{ClientID: "late", Status: clients.StatusOnline}))
	broker.Wait()

	avail, err := mgr.Available(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, avail, 1)
}

func TestTransportStartSubscribeError(t *testing.T) {
	ps := new(mocks.PubSub)
	ps.On("Subscribe", mock.Anything, topics.Results(), mock.Anything).Return(assert.AnError)

	tr := clients.NewTransport(ps, topics, logger)
	err := tr.Start(context.Background(), clients.NewManager())
	assert.ErrorIs(t, err, assert.AnError)
	ps.AssertExpectations(t)
}
