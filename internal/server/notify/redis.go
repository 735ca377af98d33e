package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/marksync/internal/logging"
)

// ConnectOptions controls how long Connect keeps trying a Redis server that
// is not up yet.
type ConnectOptions struct {
	Addr           string
	ConnectTimeout time.Duration // total time allowed for connection attempts
	RetryInterval  time.Duration // first pause between attempts, doubled each time
	MaxWait        time.Duration // cap on the pause
	PingTimeout    time.Duration
}

// DefaultConnectOptions are used by the server.
func DefaultConnectOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		ConnectTimeout: 30 * time.Second,
		RetryInterval:  500 * time.Millisecond,
		MaxWait:        5 * time.Second,
		PingTimeout:    2 * time.Second,
	}
}

func (o ConnectOptions) validate() error {
	switch {
	case o.Addr == "":
		return fmt.Errorf("redis address is empty")
	case o.ConnectTimeout <= 0:
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", o.ConnectTimeout)
	case o.RetryInterval <= 0:
		return fmt.Errorf("RetryInterval must be > 0, got %v", o.RetryInterval)
	case o.MaxWait <= 0:
		return fmt.Errorf("MaxWait must be > 0, got %v", o.MaxWait)
	case o.PingTimeout <= 0:
		return fmt.Errorf("PingTimeout must be > 0, got %v", o.PingTimeout)
	}
	return nil
}

// Connect opens a client and pings it with exponential backoff until it
// answers or ConnectTimeout runs out.
func Connect(ctx context.Context, opts ConnectOptions, logger logging.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{Addr: opts.Addr})

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	logger.Info(ctx, "connecting to redis", "addr", opts.Addr, "timeout", opts.ConnectTimeout)

	wait := opts.RetryInterval
	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := client.Ping(pingCtx).Err()
		pingCancel()

		if err == nil {
			if attempt > 1 {
				logger.Warn(ctx, "connected to redis after retry", "addr", opts.Addr, "attempts", attempt)
			} else {
				logger.Info(ctx, "connected to redis", "addr", opts.Addr)
			}
			return client, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = client.Close()
			return nil, fmt.Errorf("redis unavailable at %s after %d attempts: %w", opts.Addr, attempt, err)
		case <-timer.C:
			logger.Warn(ctx, "redis connection failed, retrying", "addr", opts.Addr, "attempt", attempt, "next_retry_in", wait, "error", err)
			wait *= 2
			if wait > opts.MaxWait {
				wait = opts.MaxWait
			}
		}
	}
}

// StreamAdder is the part of a redis client RedisNotifier writes through.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisNotifier appends a BookmarkCreated entry to a Redis stream for every
// new bookmark. Entries carry the event type and the CBOR payload.
type RedisNotifier struct {
	client StreamAdder
	stream string
	maxLen int64
}

func NewRedisNotifier(client StreamAdder, stream string) *RedisNotifier {
	return &RedisNotifier{client: client, stream: stream, maxLen: 100000}
}

func (n *RedisNotifier) NotifyCreated(ctx context.Context, owner, urlID uuid.UUID) error {
	payload, err := NewBookmarkCreated(owner, urlID).Encode()
	if err != nil {
		return err
	}

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{"type": TypeBookmarkCreated, "payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", n.stream, err)
	}
	return nil
}
