package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is the distributed queue contract: at-least-once delivery with a
// single active consumer per claimed message. Only job identifiers travel over
// the queue; the worker re-reads everything else from storage.
type Queue interface {
	Publish(ctx context.Context, jobID string) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, jobID string) error
	RequeueStale(ctx context.Context, max int64) (int64, error)
}

// ErrQueueEmpty is returned by ClaimBlocking when nothing arrived within the
// timeout.
var ErrQueueEmpty = errors.New("queue empty")

// redisReliableQueue is a reliable queue on Redis lists.
// Publish: LPUSH queue
// Claim:   BRPOPLPUSH queue -> processing
// Ack:     LREM processing
// A reaper periodically moves stale processing entries back onto the queue.
type redisReliableQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
}

func NewRedisQueue(rdb *redis.Client, queueKey, processingKey string) Queue {
	return &redisReliableQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
	}
}

func (q *redisReliableQueue) Publish(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.queueKey, jobID).Err()
}

// ClaimBlocking waits up to timeout for a job id. timeout <= 0 blocks in 1s
// slots until ctx is done, like a worker daemon.
func (q *redisReliableQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	forever := timeout <= 0
	wait := timeout
	if forever {
		wait = time.Second
	}

	for {
		id, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, wait).Result()
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, redis.Nil) {
			return "", err
		}
		if !forever {
			return "", ErrQueueEmpty
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}

func (q *redisReliableQueue) Ack(ctx context.Context, jobID string) error {
	return q.rdb.LRem(ctx, q.processingKey, 1, jobID).Err()
}

// RequeueStale moves up to max entries from processing back onto the queue.
// Combined with the status-guarded job transitions this gives at-least-once
// delivery without double-applying a terminal result.
func (q *redisReliableQueue) RequeueStale(ctx context.Context, max int64) (int64, error) {
	var moved int64
	for i := int64(0); i < max; i++ {
		_, err := q.rdb.RPopLPush(ctx, q.processingKey, q.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return moved, err
		}
		moved++
	}
	return moved, nil
}
