// Package merge implements the identity contract between a message's
// pending and delivered phases, and the reconciliation rule consumers apply
// so the two phases converge to a single displayed entry.
package merge

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/velimir/roomcast/internal/models"
)

const compositeBodyPrefix = 16

// Key returns the stable identity for a message record. A server-assigned
// identity is always used verbatim: the origin back-reference first, then
// the message's own id. The composite fallback exists only for malformed or
// legacy payloads that carry neither and must never override a present id.
func Key(m *models.Message) string {
	if m.OriginID != uuid.Nil {
		return m.OriginID.String()
	}
	if m.ID != uuid.Nil {
		return m.ID.String()
	}
	return compositeKey(m)
}

func compositeKey(m *models.Message) string {
	prefix := m.Body
	if len(prefix) > compositeBodyPrefix {
		prefix = prefix[:compositeBodyPrefix]
	}
	return fmt.Sprintf("%s|%s|%d|%s", m.Author, m.SubChannel, m.EffectiveTime().UnixMilli(), prefix)
}
