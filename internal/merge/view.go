package merge

import (
	"sort"

	"github.com/velimir/roomcast/internal/models"
)

// Record is a consumer's latest known state for one logical message.
// WasScheduled is set when a pending placeholder was later fulfilled by a
// delivered copy; callers typically render such messages distinctly.
type Record struct {
	models.Message
	WasScheduled bool
}

// View maps identity to the latest known record for one sub-channel.
// Applying any sequence of server events through Apply is idempotent and
// order-insensitive: state only moves forward and delivery timestamps are
// never erased once set.
type View struct {
	records map[string]*Record
}

func NewView() *View {
	return &View{records: make(map[string]*Record)}
}

// Apply reconciles an incoming record with whatever the view already holds
// under the same identity and returns the merged result.
func (v *View) Apply(incoming models.Message) *Record {
	key := Key(&incoming)

	prior, ok := v.records[key]
	if !ok {
		rec := &Record{Message: incoming}
		v.records[key] = rec
		return rec
	}

	if incoming.State == models.StatePending && prior.State != models.StatePending {
		// State never regresses: a stale pending retransmission may only
		// fill fields the prior record is missing.
		if prior.DeliverAt == nil {
			prior.DeliverAt = incoming.DeliverAt
		}
		return prior
	}

	wasPending := prior.State == models.StatePending
	delivered := incoming.State == models.StateDelivered || incoming.State == models.StateImmediate

	prior.Author = incoming.Author
	prior.Body = incoming.Body
	prior.CreatedAt = incoming.CreatedAt
	prior.State = incoming.State
	if incoming.DeliverAt != nil {
		prior.DeliverAt = incoming.DeliverAt
	}
	if incoming.DeliveredAt != nil {
		prior.DeliveredAt = incoming.DeliveredAt
	}
	if wasPending && delivered {
		prior.WasScheduled = true
	}
	return prior
}

// Len reports the number of distinct identities known to the view.
func (v *View) Len() int {
	return len(v.records)
}

// Get returns the record for an identity, if known.
func (v *View) Get(key string) (*Record, bool) {
	rec, ok := v.records[key]
	return rec, ok
}

// Messages returns the visible sequence sorted by effective time ascending,
// so scheduled messages appear at their delivery time, not creation time.
func (v *View) Messages() []Record {
	out := make([]Record, 0, len(v.records))
	for _, rec := range v.records {
		out = append(out, *rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].EffectiveTime(), out[j].EffectiveTime()
		if ti.Equal(tj) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return ti.Before(tj)
	})
	return out
}
