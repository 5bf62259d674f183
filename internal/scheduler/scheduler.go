// Package scheduler creates messages, assigns their identity, and fires
// delayed deliveries exactly once after their delay elapses.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velimir/roomcast/internal/models"
	"github.com/velimir/roomcast/internal/store"
)

// MaxDelay bounds how far ahead a message may be scheduled. Longer requests
// are clamped, not rejected.
const MaxDelay = 6 * time.Hour

// Broadcaster receives every message the instant it becomes final, in the
// same order the room's log is appended.
type Broadcaster interface {
	BroadcastDelivered(msg *models.Message)
}

// Scheduler owns pending deliveries: a min-heap keyed by DeliverAt drained
// by a single loop, so a delivery fires exactly once and appends to the
// room log from one goroutine.
type Scheduler struct {
	store   store.RoomStore
	bus     Broadcaster
	journal Journal
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending pendingHeap
	wake    chan struct{}
}

func New(st store.RoomStore, bus Broadcaster, journal Journal, logger *zap.Logger) *Scheduler {
	if journal == nil {
		journal = noopJournal{}
	}
	return &Scheduler{
		store:   st,
		bus:     bus,
		journal: journal,
		logger:  logger,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// SendNow creates an immediate message, appends it to the room log, and
// returns it for broadcast. Immediate is the degenerate delivered case:
// DeliveredAt is set and OriginID is the self-reference.
func (s *Scheduler) SendNow(roomID, subChannel, author, body string) (*models.Message, error) {
	now := s.now()
	msg := &models.Message{
		ID:          uuid.New(),
		RoomID:      roomID,
		SubChannel:  subChannel,
		Author:      author,
		Body:        body,
		CreatedAt:   now,
		DeliveredAt: &now,
		State:       models.StateImmediate,
	}
	msg.OriginID = msg.ID

	if err := s.store.AppendDelivered(roomID, subChannel, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Schedule creates a pending message with DeliverAt = now + delay and
// registers it for delivery. The returned record is for the private
// acknowledgment to the scheduling connection only; the room sees nothing
// until the delay elapses. There is no cancellation.
func (s *Scheduler) Schedule(roomID, subChannel, author, body string, delay time.Duration) (*models.Message, error) {
	if delay < 0 {
		delay = 0
	}
	if delay > MaxDelay {
		delay = MaxDelay
	}

	now := s.now()
	deliverAt := now.Add(delay)
	msg := &models.Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		SubChannel: subChannel,
		Author:     author,
		Body:       body,
		CreatedAt:  now,
		DeliverAt:  &deliverAt,
		State:      models.StatePending,
	}

	if err := s.journal.Record(context.Background(), msg); err != nil {
		s.logger.Warn("journal write failed, delivery will not survive restart",
			zap.String("id", msg.ID.String()), zap.Error(err))
	}

	s.push(msg)
	return msg, nil
}

// Recover reloads outstanding deliveries from the journal onto the heap.
// Past-due entries fire on the next loop iteration.
func (s *Scheduler) Recover(ctx context.Context) error {
	outstanding, err := s.journal.Outstanding(ctx)
	if err != nil {
		return err
	}
	for _, msg := range outstanding {
		s.push(msg)
	}
	if len(outstanding) > 0 {
		s.logger.Info("recovered pending deliveries", zap.Int("count", len(outstanding)))
	}
	return nil
}

// Run drains due deliveries until ctx is done. It sleeps until the earliest
// DeliverAt and is woken early whenever something sooner is scheduled.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.deliverDue()

		wait := s.untilNext()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

func (s *Scheduler) push(msg *models.Message) {
	s.mu.Lock()
	heap.Push(&s.pending, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return time.Hour
	}
	wait := time.Until(*s.pending[0].DeliverAt)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// deliverDue pops every message whose DeliverAt has passed and finalizes
// it. Popping under the mutex and finalizing from this single loop is what
// makes delivery exactly-once.
func (s *Scheduler) deliverDue() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 || s.pending[0].DeliverAt.After(s.now()) {
			s.mu.Unlock()
			return
		}
		msg := heap.Pop(&s.pending).(*models.Message)
		s.mu.Unlock()

		s.deliver(msg)
	}
}

func (s *Scheduler) deliver(msg *models.Message) {
	now := s.now()
	msg.State = models.StateDelivered
	msg.DeliveredAt = &now
	msg.OriginID = msg.ID

	// The owning room may have never existed on this process (journal
	// recovery) or be referenced for the first time here; deliver into a
	// lazily created room rather than failing.
	if err := s.store.EnsureRoom(msg.RoomID); err != nil {
		s.logger.Error("ensure room failed on delivery", zap.String("room", msg.RoomID), zap.Error(err))
	}
	if err := s.store.AppendDelivered(msg.RoomID, msg.SubChannel, msg); err != nil {
		s.logger.Error("append delivered failed", zap.String("id", msg.ID.String()), zap.Error(err))
		return
	}

	if err := s.journal.Forget(context.Background(), msg); err != nil {
		s.logger.Warn("journal remove failed", zap.String("id", msg.ID.String()), zap.Error(err))
	}

	s.bus.BroadcastDelivered(msg)
}
