// Package delivery routes batches of payment events to their account-month streams.
package delivery

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/metrics"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/stream"
)

// Handler groups a batch by stream and appends every group independently.
// A failed group is logged and dead-lettered; its siblings are not affected.
type Handler struct {
	writer      domain.EventWriter
	concurrency int
}

// NewHandler creates a Handler. concurrency bounds parallel appends; zero means unbounded.
func NewHandler(writer domain.EventWriter, concurrency int) *Handler {
	return &Handler{
		writer:      writer,
		concurrency: concurrency,
	}
}

type streamGroup struct {
	streamID string
	events   []models.PaymentOperationEvent
}

// Handle delivers batch and returns once every stream group has finished.
// It never fails: errors are logged and recorded per group.
func (h *Handler) Handle(ctx context.Context, batch []models.PaymentOperationEvent) {
	if len(batch) == 0 {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Delivery of batch aborted: size=%d, panic=%v", len(batch), r)
		}
	}()

	groups := h.group(ctx, batch)

	var g errgroup.Group
	if h.concurrency > 0 {
		g.SetLimit(h.concurrency)
	}
	for _, grp := range groups {
		g.Go(func() error {
			h.deliver(ctx, grp)
			return nil
		})
	}
	_ = g.Wait()
}

// group splits batch by stream, keeping arrival order inside each group and
// first-appearance order between groups. Malformed events are dead-lettered.
func (h *Handler) group(ctx context.Context, batch []models.PaymentOperationEvent) []*streamGroup {
	index := make(map[string]*streamGroup)
	var groups []*streamGroup

	for _, event := range batch {
		if event.Payload.PaymentAccountID == "" || event.Payload.OperationDay.IsZero() {
			log.Printf("Dropping unroutable event: eventId=%s, operationKey=%s", event.ID, event.Payload.Key)
			h.deadLetter(ctx, event, fmt.Errorf("event has no account id or operation day"))
			continue
		}

		streamID := stream.For(event.Payload.PaymentAccountID, event.Payload.OperationDay)
		grp, ok := index[streamID]
		if !ok {
			grp = &streamGroup{streamID: streamID}
			index[streamID] = grp
			groups = append(groups, grp)
		}
		grp.events = append(grp.events, event)
	}

	return groups
}

func (h *Handler) deliver(ctx context.Context, grp *streamGroup) {
	defer func() {
		if r := recover(); r != nil {
			h.fail(ctx, grp, fmt.Errorf("append panicked: %v", r))
		}
	}()

	typeTag := grp.events[0].TypeTitle()

	result, err := h.writer.AppendBatch(ctx, grp.streamID, grp.events, typeTag)
	if err != nil {
		h.fail(ctx, grp, err)
		return
	}

	for _, event := range grp.events {
		metrics.EventsAppended.WithLabelValues(string(event.EventType)).Inc()
	}
	log.Printf("Appended events: stream=%s, count=%d, type=%s, next_version=%d",
		grp.streamID, len(grp.events), typeTag, result.NextExpectedVersion)
}

func (h *Handler) fail(ctx context.Context, grp *streamGroup, err error) {
	metrics.AppendFailures.Inc()
	log.Printf("Failed to append events: stream=%s, count=%d, error=%v", grp.streamID, len(grp.events), err)

	cause := fmt.Errorf("append to stream %s: %w", grp.streamID, err)
	for _, event := range grp.events {
		h.deadLetter(ctx, event, cause)
	}
}

func (h *Handler) deadLetter(ctx context.Context, event models.PaymentOperationEvent, cause error) {
	metrics.DeadLetters.Inc()
	if err := h.writer.SendToDeadLetter(ctx, event, cause); err != nil {
		log.Printf("Failed to dead-letter event: eventId=%s, error=%v", event.ID, err)
	}
}
