package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/mqtt"
	"github.com/google/uuid"
)

var errRemote = errors.New("participant reported an error")

// Transport carries fit and evaluate calls to remote participants over
// MQTT and keeps the manager in sync with their announcements.
type Transport struct {
	pubsub  mqtt.PubSub
	topics  Topics
	logger  *slog.Logger
	mu      sync.Mutex
	pending map[string]chan Response
}

func NewTransport(pubsub mqtt.PubSub, topics Topics, logger *slog.Logger) *Transport {
	return &Transport{
		pubsub:  pubsub,
		topics:  topics,
		logger:  logger,
		pending: make(map[string]chan Response),
	}
}

// Start subscribes to participant results and announcements. Announced
// clients are registered with mgr.
func (t *Transport) Start(ctx context.Context, mgr *Manager) error {
	if err := t.pubsub.Subscribe(ctx, t.topics.Results(), t.handleResult); err != nil {
		return fmt.Errorf("failed to subscribe to results: %w", err)
	}

	handler := t.handleAnnouncement(ctx, mgr)
	for _, topic := range []string{t.topics.Create(), t.topics.Alive()} {
		if err := t.pubsub.Subscribe(ctx, topic, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	return nil
}

func (t *Transport) Stop(ctx context.Context) error {
	var errs []error
	for _, topic := range []string{t.topics.Results(), t.topics.Create(), t.topics.Alive()} {
		if err := t.pubsub.Unsubscribe(ctx, topic); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Client returns the remote handle for a participant.
func (t *Transport) Client(id string) Client {
	return &remote{transport: t, id: id}
}

func (t *Transport) handleAnnouncement(ctx context.Context, mgr *Manager) mqtt.Handler {
	return func(topic string, msg map[string]any) error {
		var a Announcement
		if err := Decode(msg, &a); err != nil {
			return err
		}
		if a.ClientID == "" {
			return pkgerrors.ErrEmptyKey
		}

		if a.Status == StatusOffline {
			t.logger.Info("client went offline", slog.String("client_id", a.ClientID))

			return mgr.Disconnect(ctx, a.ClientID)
		}

		// Heartbeats from clients without a live handle count as a
		// (re)connect.
		if topic == t.topics.Alive() {
			if _, err := mgr.Proxy(a.ClientID); err == nil {
				return mgr.Heartbeat(ctx, a.ClientID)
			}
		}

		d, err := mgr.Register(ctx, Descriptor{
			ID:         a.ClientID,
			Name:       a.Name,
			NumSamples: a.NumSamples,
			Properties: a.Properties,
		}, t.Client(a.ClientID))
		if err != nil {
			return err
		}
		t.logger.Info("client registered",
			slog.String("client_id", d.ID),
			slog.String("name", d.Name),
			slog.Int("num_samples", d.NumSamples),
		)

		return nil
	}
}

func (t *Transport) handleResult(_ string, msg map[string]any) error {
	var resp Response
	if err := Decode(msg, &resp); err != nil {
		return err
	}

	t.mu.Lock()
	ch, ok := t.pending[resp.RequestID]
	delete(t.pending, resp.RequestID)
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("dropping late or unknown result",
			slog.String("request_id", resp.RequestID),
			slog.String("client_id", resp.ClientID),
		)

		return nil
	}
	ch <- resp

	return nil
}

func (t *Transport) roundTrip(ctx context.Context, req Request) (Response, error) {
	req.RequestID = uuid.NewString()
	ch := make(chan Response, 1)

	t.mu.Lock()
	t.pending[req.RequestID] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, req.RequestID)
		t.mu.Unlock()
	}()

	if err := t.pubsub.Publish(ctx, t.topics.Requests(req.ClientID), req); err != nil {
		return Response{}, fmt.Errorf("failed to publish %s request: %w", req.Kind, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return Response{}, fmt.Errorf("%w: %s", errRemote, resp.Error)
		}

		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

type remote struct {
	transport *Transport
	id        string
}

func (r *remote) Fit(ctx context.Context, ins FitIns) (FitRes, error) {
	encoded, err := fl.EncodeParameters(ins.Parameters)
	if err != nil {
		return FitRes{}, err
	}

	resp, err := r.transport.roundTrip(ctx, Request{
		ClientID:   r.id,
		Kind:       KindFit,
		Config:     ins.Config,
		Parameters: encoded,
	})
	if err != nil {
		return FitRes{}, err
	}

	params, err := fl.DecodeParameters(resp.Parameters)
	if err != nil {
		return FitRes{}, err
	}

	return FitRes{
		Parameters: params,
		NumSamples: resp.NumSamples,
		Metrics:    resp.Metrics,
	}, nil
}

func (r *remote) Evaluate(ctx context.Context, ins EvaluateIns) (EvaluateRes, error) {
	encoded, err := fl.EncodeParameters(ins.Parameters)
	if err != nil {
		return EvaluateRes{}, err
	}

	resp, err := r.transport.roundTrip(ctx, Request{
		ClientID:   r.id,
		Kind:       KindEvaluate,
		Config:     ins.Config,
		Parameters: encoded,
	})
	if err != nil {
		return EvaluateRes{}, err
	}

	return EvaluateRes{
		Loss:       resp.Loss,
		NumSamples: resp.NumSamples,
		Metrics:    resp.Metrics,
	}, nil
}
