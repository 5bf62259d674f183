package scheduler

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/velimir/roomcast/internal/models"
)

// Journal mirrors pending deliveries somewhere that survives a restart.
// Without one, a scheduled message is lost if the process dies before its
// timer fires.
type Journal interface {
	Record(ctx context.Context, msg *models.Message) error
	Forget(ctx context.Context, msg *models.Message) error
	Outstanding(ctx context.Context) ([]*models.Message, error)
}

const journalKey = "roomcast:pending"

// RedisJournal keeps pending deliveries in a sorted set scored by DeliverAt
// so recovery can replay them in firing order.
type RedisJournal struct {
	rdb *redis.Client
}

func NewRedisJournal(rdb *redis.Client) *RedisJournal {
	return &RedisJournal{rdb: rdb}
}

func (j *RedisJournal) Record(ctx context.Context, msg *models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return j.rdb.ZAdd(ctx, journalKey, &redis.Z{
		Score:  float64(msg.DeliverAt.UnixMilli()),
		Member: payload,
	}).Err()
}

func (j *RedisJournal) Forget(ctx context.Context, msg *models.Message) error {
	// The member was stored in pending form; rebuild it rather than
	// marshaling the now-delivered record.
	pending := *msg
	pending.State = models.StatePending
	pending.DeliveredAt = nil
	pending.OriginID = uuid.Nil
	payload, err := json.Marshal(&pending)
	if err != nil {
		return err
	}
	return j.rdb.ZRem(ctx, journalKey, payload).Err()
}

func (j *RedisJournal) Outstanding(ctx context.Context) ([]*models.Message, error) {
	members, err := j.rdb.ZRangeByScore(ctx, journalKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*models.Message, 0, len(members))
	for _, member := range members {
		var msg models.Message
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			continue
		}
		out = append(out, &msg)
	}
	return out, nil
}

type noopJournal struct{}

func (noopJournal) Record(context.Context, *models.Message) error  { return nil }
func (noopJournal) Forget(context.Context, *models.Message) error  { return nil }
func (noopJournal) Outstanding(context.Context) ([]*models.Message, error) {
	return nil, nil
}
