// Package participant answers the coordinator's fit and evaluate requests
// for one local learner.
package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/mqtt"
)

var (
	errUnknownKind = errors.New("unknown request kind")
	errStopping    = errors.New("participant is stopping")
)

type Service struct {
	cfg        Config
	pubsub     mqtt.PubSub
	topics     clients.Topics
	client     clients.Client
	numSamples int
	logger     *slog.Logger

	// Requests are served one at a time; the learner is not reentrant.
	mu sync.Mutex

	// inflight guards stopped so no request is added to wg once Run waits.
	inflight sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
}

func NewService(cfg Config, pubsub mqtt.PubSub, client clients.Client, numSamples int, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid participant configuration: %w", err)
	}

	return &Service{
		cfg:        cfg,
		pubsub:     pubsub,
		topics:     clients.NewTopics(cfg.DomainID, cfg.ChannelID),
		client:     client,
		numSamples: numSamples,
		logger:     logger,
	}, nil
}

// Will is the announcement the broker publishes for a participant whose
// connection drops.
func Will(cfg Config) *mqtt.Will {
	return &mqtt.Will{
		Topic: clients.NewTopics(cfg.DomainID, cfg.ChannelID).Alive(),
		Payload: clients.Announcement{
			ClientID: cfg.ID,
			Status:   clients.StatusOffline,
		},
	}
}

// Run announces the participant, serves requests until ctx is done and
// then announces it offline.
func (s *Service) Run(ctx context.Context) error {
	if err := s.pubsub.Subscribe(ctx, s.topics.Requests(s.cfg.ID), s.handleRequest(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to requests: %w", err)
	}
	if err := s.pubsub.Publish(ctx, s.topics.Create(), s.announcement(clients.StatusOnline)); err != nil {
		return errors.Join(errors.New("failed to publish announcement"), err)
	}
	s.logger.Info("participant is running",
		slog.String("id", s.cfg.ID),
		slog.String("name", s.cfg.Name),
		slog.Int("num_samples", s.numSamples),
	)

	s.heartbeat(ctx)

	s.inflight.Lock()
	s.stopped = true
	s.inflight.Unlock()
	s.wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	return errors.Join(
		s.pubsub.Publish(stopCtx, s.topics.Alive(), s.announcement(clients.StatusOffline)),
		s.pubsub.Unsubscribe(stopCtx, s.topics.Requests(s.cfg.ID)),
	)
}

func (s *Service) announcement(status string) clients.Announcement {
	return clients.Announcement{
		ClientID:   s.cfg.ID,
		Name:       s.cfg.Name,
		Status:     status,
		NumSamples: s.numSamples,
		Properties: s.cfg.Properties,
	}
}

func (s *Service) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping heartbeats")

			return
		case <-ticker.C:
			if err := s.pubsub.Publish(ctx, s.topics.Alive(), s.announcement(clients.StatusOnline)); err != nil {
				s.logger.Error("failed to publish heartbeat", slog.Any("error", err))

				continue
			}
			s.logger.Debug("published heartbeat", slog.String("topic", s.topics.Alive()))
		}
	}
}

func (s *Service) handleRequest(ctx context.Context) mqtt.Handler {
	return func(_ string, msg map[string]any) error {
		var req clients.Request
		if err := clients.Decode(msg, &req); err != nil {
			return err
		}
		if req.ClientID != s.cfg.ID {
			return nil
		}

		s.inflight.Lock()
		if s.stopped {
			s.inflight.Unlock()
			s.logger.Warn("dropped request received while stopping", slog.String("request_id", req.RequestID))

			return errStopping
		}
		s.wg.Add(1)
		s.inflight.Unlock()

		// Training can outlast the broker's callback; answer asynchronously.
		go func() {
			defer s.wg.Done()

			resp := s.serve(ctx, req)
			if err := s.pubsub.Publish(context.WithoutCancel(ctx), s.topics.Results(), resp); err != nil {
				s.logger.Error("failed to publish result",
					slog.String("request_id", req.RequestID),
					slog.Any("error", err),
				)
			}
		}()

		return nil
	}
}

func (s *Service) serve(ctx context.Context, req clients.Request) clients.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	resp := clients.Response{
		RequestID: req.RequestID,
		ClientID:  s.cfg.ID,
		Kind:      req.Kind,
	}

	err := s.dispatch(ctx, req, &resp)
	args := []any{
		slog.String("request_id", req.RequestID),
		slog.String("kind", req.Kind),
		slog.Int("round", req.Config.Round),
		slog.String("duration", time.Since(start).String()),
	}
	if err != nil {
		resp.Error = err.Error()
		args = append(args, slog.Any("error", err))
		s.logger.Warn("request failed", args...)

		return resp
	}
	s.logger.Info("request completed", append(args, slog.Int("num_samples", resp.NumSamples))...)

	return resp
}

func (s *Service) dispatch(ctx context.Context, req clients.Request, resp *clients.Response) error {
	params, err := fl.DecodeParameters(req.Parameters)
	if err != nil {
		return err
	}

	switch req.Kind {
	case clients.KindFit:
		res, err := s.client.Fit(ctx, clients.FitIns{Parameters: params, Config: req.Config})
		if err != nil {
			return err
		}
		if resp.Parameters, err = fl.EncodeParameters(res.Parameters); err != nil {
			return err
		}
		resp.NumSamples = res.NumSamples
		resp.Metrics = res.Metrics
	case clients.KindEvaluate:
		res, err := s.client.Evaluate(ctx, clients.EvaluateIns{Parameters: params, Config: req.Config})
		if err != nil {
			return err
		}
		resp.Loss = res.Loss
		resp.NumSamples = res.NumSamples
		resp.Metrics = res.Metrics
	default:
		return fmt.Errorf("%w: %q", errUnknownKind, req.Kind)
	}

	return nil
}
