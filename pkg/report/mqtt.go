package report

import (
	"context"
	"time"

	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/mqtt"
)

type publisher struct {
	pubsub mqtt.PubSub
	topic  string
}

// Publisher announces every completed round on topic so participants and
// dashboards can follow the run.
func Publisher(pubsub mqtt.PubSub, topic string) Reporter {
	return publisher{pubsub: pubsub, topic: topic}
}

func (p publisher) RoundCompleted(ctx context.Context, runID string, rec fl.RoundRecord) error {
	return p.pubsub.Publish(ctx, p.topic, map[string]any{
		"run_id":        runID,
		"round":         rec.Round,
		"outcome":       rec.Outcome,
		"model_version": rec.ModelVersion,
		"centralized":   rec.Centralized,
		"timestamp":     time.Now().UTC(),
	})
}

func (p publisher) RunCompleted(ctx context.Context, snap fl.Snapshot) error {
	return p.pubsub.Publish(ctx, p.topic, map[string]any{
		"run_id":    snap.RunID,
		"completed": true,
		"rounds":    len(snap.Rounds),
		"timestamp": time.Now().UTC(),
	})
}
