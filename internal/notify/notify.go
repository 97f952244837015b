package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/boardroom/config"
)

// Broadcaster announces board activity to listeners. Delivery is best
// effort; a failed broadcast never fails the discussion that produced it.
type Broadcaster interface {
	BoardActivity(ctx context.Context, strategyID, actor, msgType string)
}

// Envelope is the JSON document appended to the activity stream.
type Envelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	StrategyID string    `json:"strategy_id"`
	Actor      string    `json:"actor"`
	MsgType    string    `json:"msg_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RedisBroadcaster publishes activity envelopes onto a Redis stream.
type RedisBroadcaster struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *log.Logger
}

func NewRedisBroadcaster(cfg config.NotifyConfig) *RedisBroadcaster {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &RedisBroadcaster{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		logger: log.New(log.Writer(), "[NOTIFY] ", log.LstdFlags),
	}
}

// BoardActivity appends one envelope to the stream. Errors are logged and
// swallowed.
func (b *RedisBroadcaster) BoardActivity(ctx context.Context, strategyID, actor, msgType string) {
	env := Envelope{
		EventID:    uuid.NewString(),
		EventType:  "board.message",
		StrategyID: strategyID,
		Actor:      actor,
		MsgType:    msgType,
		OccurredAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		b.logger.Printf("marshal activity envelope: %v", err)
		return
	}
	args := &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{"envelope": raw},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		b.logger.Printf("publish activity for strategy %s: %v", strategyID, err)
	}
}

// Close releases the underlying Redis connection.
func (b *RedisBroadcaster) Close() error { return b.client.Close() }

// NoopBroadcaster drops all activity. Used when notifications are disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BoardActivity(context.Context, string, string, string) {}
