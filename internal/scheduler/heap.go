package scheduler

import "github.com/velimir/roomcast/internal/models"

// pendingHeap orders pending deliveries by DeliverAt, earliest first.
type pendingHeap []*models.Message

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	return h[i].DeliverAt.Before(*h[j].DeliverAt)
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) {
	*h = append(*h, x.(*models.Message))
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
