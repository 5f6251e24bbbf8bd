package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"adminpanel/api/internal/metrics"
)

const TypeSweepSessions = "sweep_sessions"

// Sweeper revokes sessions past their absolute expiry.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type Processor struct {
	sweeper Sweeper
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

type TaskPayload struct {
	Type        string `json:"type"`
	RequestedAt string `json:"requested_at"`
}

func NewProcessor(sweeper Sweeper, m *metrics.Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		sweeper: sweeper,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// SweepSessionsTask builds the stream entry for a sweep request.
func SweepSessionsTask(requestedAt time.Time) map[string]any {
	return map[string]any{
		"type":         TypeSweepSessions,
		"requested_at": requestedAt.UTC().Format(time.RFC3339),
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		p.metrics.Task("invalid", "error")
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case TypeSweepSessions:
		_, err := p.SweepNow(ctx)
		return err
	default:
		// unknown entries are acked so they do not cycle through the claimer forever
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		p.metrics.Task(payload.Type, "unknown")
		return nil
	}
}

// SweepNow revokes every session past its absolute expiry and returns how
// many were revoked.
func (p *Processor) SweepNow(ctx context.Context) (int64, error) {
	swept, err := p.sweeper.SweepExpired(ctx, p.now())
	if err != nil {
		p.metrics.Task(TypeSweepSessions, "error")
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}

	p.metrics.Task(TypeSweepSessions, "ok")
	p.metrics.Swept(swept)
	p.metrics.Revoked("expired", swept)
	p.logger.Info().Int64("swept", swept).Msg("expired sessions swept")
	return swept, nil
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}
