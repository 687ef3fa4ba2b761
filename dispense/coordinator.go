package dispense

import (
	"context"
	"errors"
	"log/slog"
	"ration-kiosk/common"
	"ration-kiosk/common/constant"
	"ration-kiosk/common/otel"
	"ration-kiosk/model"
	"ration-kiosk/notify"
	"ration-kiosk/outbound/serial"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/viper"
)

// Reason strings surfaced in DispenseOutcome.
const (
	ReasonLinkUnavailable   = "link unavailable"
	ReasonUnknownItem       = "unknown item"
	ReasonInsufficientStock = "insufficient stock"
	ReasonBusy              = "busy"
	ReasonCancelled         = "cancelled"
	ReasonLedgerError       = "ledger error"
	ReasonWriteError        = "write error"
	ReasonTimeout           = "timeout"
	ReasonLinkFault         = "link fault"
)

// Coordinator runs one dispense request end to end: reserve stock,
// command the hardware, await the terminal notice, then commit or roll
// back. The gate admits one hardware session at a time; the ledger is
// atomic on its own because two different items can be validated
// concurrently even though only one can be dispensed physically.
type Coordinator struct {
	Link      *serial.Link
	Ledger    StockLedger
	Log       TransactionLog
	Events    *notify.Broadcaster
	Publisher jetstream.Publisher

	TimeNow func() time.Time

	timeout  time.Duration
	maxQueue int32
	gate     chan struct{}
	inflight atomic.Int32
}

func NewCoordinator(
	cfg *viper.Viper,
	link *serial.Link,
	ledger StockLedger,
	txLog TransactionLog,
	events *notify.Broadcaster,
	publisher jetstream.Publisher,
) *Coordinator {
	return &Coordinator{
		Link:      link,
		Ledger:    ledger,
		Log:       txLog,
		Events:    events,
		Publisher: publisher,
		TimeNow:   time.Now,

		timeout:  cfg.GetDuration("dispense.timeout"),
		maxQueue: cfg.GetInt32("dispense.max_queue"),
		gate:     make(chan struct{}, 1),
	}
}

// Dispense suspends the caller until the outcome is known. Every call
// resolves within the configured timeout bound, it never hangs on the
// hardware.
func (c *Coordinator) Dispense(ctx context.Context, req model.DispenseRequest) model.DispenseOutcome {
	ctx, span := otel.Tracer.Start(ctx, "Coordinator.Dispense")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "dispense request admitted", traceIdAttr, slog.Any(constant.LogFieldPayload, req))

	if !c.Link.Ready() {
		return c.rejected(ctx, req, ReasonLinkUnavailable)
	}

	// Admission: one active session plus a bounded FIFO of waiters.
	// Blocked sends on the gate are served in arrival order.
	if c.inflight.Add(1) > c.maxQueue+1 {
		c.inflight.Add(-1)
		return c.rejected(ctx, req, ReasonBusy)
	}
	defer c.inflight.Add(-1)

	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		// Still queued, nothing reserved: safe to drop.
		return c.rejected(ctx, req, ReasonCancelled)
	}
	defer func() { <-c.gate }()

	if !c.Link.Ready() {
		return c.rejected(ctx, req, ReasonLinkUnavailable)
	}

	if err := c.Ledger.Reserve(ctx, req.Item, req.Quantity); err != nil {
		switch {
		case errors.Is(err, ErrUnknownItem):
			return c.rejected(ctx, req, ReasonUnknownItem)
		case errors.Is(err, ErrInsufficientStock):
			return c.rejected(ctx, req, ReasonInsufficientStock)
		default:
			slog.ErrorContext(ctx, "ledger reserve failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return c.rejected(ctx, req, ReasonLedgerError)
		}
	}

	sess, err := c.Link.Dispense(req.RequestId, req.Item, req.Quantity)
	if err != nil {
		c.releaseReservation(ctx, req)
		if errors.Is(err, serial.ErrLinkClosed) {
			return c.failed(ctx, req, ReasonLinkFault)
		}
		slog.ErrorContext(ctx, "dispense command write failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return c.failed(ctx, req, ReasonWriteError)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	// The in-flight command must resolve so ledger and hardware stay
	// consistent; client cancellation is not honored past this point.
	select {
	case n := <-sess.Done():
		switch n.Kind {
		case serial.NoticeComplete:
			return c.commit(ctx, req)
		case serial.NoticeError:
			c.releaseReservation(ctx, req)
			return c.failed(ctx, req, n.Reason)
		default:
			c.releaseReservation(ctx, req)
			return c.failed(ctx, req, ReasonLinkFault)
		}
	case <-timer.C:
		c.Link.Abandon(sess)
		c.releaseReservation(ctx, req)
		return c.failed(ctx, req, ReasonTimeout)
	}
}

func (c *Coordinator) commit(ctx context.Context, req model.DispenseRequest) model.DispenseOutcome {
	ctx = context.WithoutCancel(ctx)
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	now := c.TimeNow()
	id, err := c.Log.Append(ctx, TransactionRecord{
		FamilyId:  req.FamilyId,
		MemberId:  req.MemberId,
		Item:      req.Item,
		Quantity:  req.Quantity,
		CreatedAt: now,
	})
	if err != nil {
		// The hardware already dispensed; the stock decrement stands
		// even when the audit row is lost.
		slog.ErrorContext(ctx, "failed to append transaction record", traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	msg := model.DispenseCompletedEventMessage{
		RequestId:     req.RequestId,
		TransactionId: id,
		FamilyId:      req.FamilyId,
		MemberId:      req.MemberId,
		Item:          req.Item,
		Quantity:      req.Quantity,
		DispensedAt:   now.Format(time.RFC3339),
	}

	c.Events.Publish(notify.Event{Type: notify.EventDispenseComplete, Payload: msg})

	if c.Publisher != nil {
		_ = common.PublishMessage(ctx, c.Publisher, constant.SubjectDispenseCompleted, msg)
	}

	slog.InfoContext(ctx, "dispense committed", traceIdAttr,
		slog.String("request_id", req.RequestId),
		slog.Int64("transaction_id", id),
	)

	return model.DispenseOutcome{
		RequestId:     req.RequestId,
		Status:        model.DispenseStatusCommitted,
		TransactionId: id,
	}
}

func (c *Coordinator) failed(ctx context.Context, req model.DispenseRequest, reason string) model.DispenseOutcome {
	ctx = context.WithoutCancel(ctx)

	msg := model.DispenseFailedEventMessage{
		RequestId: req.RequestId,
		FamilyId:  req.FamilyId,
		MemberId:  req.MemberId,
		Item:      req.Item,
		Quantity:  req.Quantity,
		Reason:    reason,
		FailedAt:  c.TimeNow().Format(time.RFC3339),
	}

	c.Events.Publish(notify.Event{Type: notify.EventDispenseError, Payload: msg})

	if c.Publisher != nil {
		_ = common.PublishMessage(ctx, c.Publisher, constant.SubjectDispenseFailed, msg)
	}

	slog.WarnContext(ctx, "dispense failed",
		slog.String("request_id", req.RequestId),
		slog.String("reason", reason),
	)

	return model.DispenseOutcome{RequestId: req.RequestId, Status: model.DispenseStatusFailed, Reason: reason}
}

func (c *Coordinator) rejected(ctx context.Context, req model.DispenseRequest, reason string) model.DispenseOutcome {
	c.Events.Publish(notify.Event{Type: notify.EventDispenseError, Payload: model.DispenseFailedEventMessage{
		RequestId: req.RequestId,
		FamilyId:  req.FamilyId,
		MemberId:  req.MemberId,
		Item:      req.Item,
		Quantity:  req.Quantity,
		Reason:    reason,
		FailedAt:  c.TimeNow().Format(time.RFC3339),
	}})

	slog.DebugContext(ctx, "dispense rejected",
		slog.String("request_id", req.RequestId),
		slog.String("reason", reason),
	)

	return model.DispenseOutcome{RequestId: req.RequestId, Status: model.DispenseStatusRejected, Reason: reason}
}

// releaseReservation runs on a detached context so a disconnected
// client cannot leak reserved stock.
func (c *Coordinator) releaseReservation(ctx context.Context, req model.DispenseRequest) {
	ctx = context.WithoutCancel(ctx)
	if err := c.Ledger.Release(ctx, req.Item, req.Quantity); err != nil {
		slog.ErrorContext(ctx, "failed to release reservation",
			slog.String("item", req.Item),
			slog.Any(constant.LogFieldErr, err),
		)
	}
}
