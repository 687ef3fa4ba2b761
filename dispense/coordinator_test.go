package dispense

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"ration-kiosk/model"
	"ration-kiosk/notify"
	"ration-kiosk/outbound/serial"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	mu       sync.Mutex
	stock    map[string]int32
	releases int
}

func newFakeLedger(stock map[string]int32) *fakeLedger {
	return &fakeLedger{stock: stock}
}

func (f *fakeLedger) Reserve(_ context.Context, item string, quantity int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, ok := f.stock[item]
	if !ok {
		return ErrUnknownItem
	}
	if current < quantity {
		return ErrInsufficientStock
	}

	f.stock[item] = current - quantity
	return nil
}

func (f *fakeLedger) Release(_ context.Context, item string, quantity int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stock[item] += quantity
	f.releases++
	return nil
}

func (f *fakeLedger) quantity(item string) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[item]
}

func (f *fakeLedger) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

type fakeTxLog struct {
	mu      sync.Mutex
	err     error
	records []TransactionRecord
}

func (f *fakeTxLog) Append(_ context.Context, rec TransactionRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return 0, f.err
	}

	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

func (f *fakeTxLog) all() []TransactionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TransactionRecord(nil), f.records...)
}

// dispenserSim plays the microcontroller on the far end of a net.Pipe.
type dispenserSim struct {
	conn     net.Conn
	commands chan string
	received atomic.Int32
}

func startDispenserSim(conn net.Conn) *dispenserSim {
	d := &dispenserSim{conn: conn, commands: make(chan string, 64)}

	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			d.received.Add(1)
			d.commands <- scanner.Text()
		}
		close(d.commands)
	}()

	return d
}

func (d *dispenserSim) send(t *testing.T, line string) {
	t.Helper()
	_, err := d.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (d *dispenserSim) nextCommand(t *testing.T) string {
	t.Helper()
	select {
	case cmd := <-d.commands:
		return cmd
	case <-time.After(time.Second):
		t.Fatal("no command received from coordinator")
		return ""
	}
}

// completeAll acknowledges every incoming command with COMPLETE.
func (d *dispenserSim) completeAll() {
	go func() {
		for range d.commands {
			_, _ = d.conn.Write([]byte("COMPLETE\n"))
		}
	}()
}

func newReadyLink(t *testing.T) (*serial.Link, *dispenserSim) {
	t.Helper()

	host, devConn := net.Pipe()
	link := serial.NewLink(func() (io.ReadWriteCloser, error) {
		return host, nil
	})

	require.NoError(t, link.Open())
	t.Cleanup(func() { _ = link.Close() })

	dev := startDispenserSim(devConn)
	dev.send(t, "READY")
	require.Eventually(t, link.Ready, time.Second, 5*time.Millisecond)

	return link, dev
}

func newTestCoordinator(
	t *testing.T,
	link *serial.Link,
	ledger StockLedger,
	txLog TransactionLog,
	timeout time.Duration,
	maxQueue int,
) *Coordinator {
	t.Helper()

	cfg := viper.New()
	cfg.Set("dispense.timeout", timeout.String())
	cfg.Set("dispense.max_queue", maxQueue)

	return NewCoordinator(cfg, link, ledger, txLog, notify.NewBroadcaster(), nil)
}

func dispenseReq(id string, quantity int32) model.DispenseRequest {
	return model.DispenseRequest{
		RequestId: id,
		FamilyId:  1,
		MemberId:  2,
		Item:      "rice",
		Quantity:  quantity,
	}
}

func TestDispenseCommitted(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	txLog := &fakeTxLog{}
	c := newTestCoordinator(t, link, ledger, txLog, time.Second, 4)
	c.TimeNow = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	events, cancel := c.Events.Subscribe()
	defer cancel()

	done := make(chan model.DispenseOutcome, 1)
	go func() { done <- c.Dispense(context.Background(), dispenseReq("req-1", 2)) }()

	assert.Equal(t, "DISPENSE,rice,2", dev.nextCommand(t))
	dev.send(t, "COMPLETE")

	outcome := <-done
	assert.Equal(t, model.DispenseStatusCommitted, outcome.Status)
	assert.Equal(t, "req-1", outcome.RequestId)
	assert.Equal(t, int64(1), outcome.TransactionId)

	assert.Equal(t, int32(8), ledger.quantity("rice"))
	assert.Equal(t, 0, ledger.releaseCount())

	records := txLog.all()
	require.Len(t, records, 1)
	assert.Equal(t, TransactionRecord{
		FamilyId:  1,
		MemberId:  2,
		Item:      "rice",
		Quantity:  2,
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}, records[0])

	select {
	case ev := <-events:
		assert.Equal(t, notify.EventDispenseComplete, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no broadcast event")
	}
}

func TestDispenseDeviceErrorRestoresStock(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	txLog := &fakeTxLog{}
	c := newTestCoordinator(t, link, ledger, txLog, time.Second, 4)

	events, cancel := c.Events.Subscribe()
	defer cancel()

	done := make(chan model.DispenseOutcome, 1)
	go func() { done <- c.Dispense(context.Background(), dispenseReq("req-1", 3)) }()

	dev.nextCommand(t)
	dev.send(t, "ERROR:jam")

	outcome := <-done
	assert.Equal(t, model.DispenseStatusFailed, outcome.Status)
	assert.Equal(t, "jam", outcome.Reason)

	assert.Equal(t, int32(10), ledger.quantity("rice"))
	assert.Equal(t, 1, ledger.releaseCount())
	assert.Empty(t, txLog.all())

	select {
	case ev := <-events:
		assert.Equal(t, notify.EventDispenseError, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no broadcast event")
	}
}

func TestDispenseTimeoutRestoresStock(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	txLog := &fakeTxLog{}
	c := newTestCoordinator(t, link, ledger, txLog, 50*time.Millisecond, 4)

	done := make(chan model.DispenseOutcome, 1)
	go func() { done <- c.Dispense(context.Background(), dispenseReq("req-1", 1)) }()

	dev.nextCommand(t)
	// Device never answers.

	outcome := <-done
	assert.Equal(t, model.DispenseStatusFailed, outcome.Status)
	assert.Equal(t, ReasonTimeout, outcome.Reason)

	assert.Equal(t, int32(10), ledger.quantity("rice"))
	assert.Empty(t, txLog.all())

	// A notice arriving after the host gave up must not break the next
	// request.
	dev.send(t, "COMPLETE")

	go func() { done <- c.Dispense(context.Background(), dispenseReq("req-2", 1)) }()
	dev.nextCommand(t)
	dev.send(t, "COMPLETE")

	outcome = <-done
	assert.Equal(t, model.DispenseStatusCommitted, outcome.Status)
	assert.Equal(t, int32(9), ledger.quantity("rice"))
}

func TestDispenseUnknownItem(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	c := newTestCoordinator(t, link, ledger, &fakeTxLog{}, time.Second, 4)

	req := dispenseReq("req-1", 1)
	req.Item = "salt"

	outcome := c.Dispense(context.Background(), req)
	assert.Equal(t, model.DispenseStatusRejected, outcome.Status)
	assert.Equal(t, ReasonUnknownItem, outcome.Reason)

	select {
	case cmd := <-dev.commands:
		t.Fatalf("unexpected command sent: %s", cmd)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispenseInsufficientStock(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 2})
	c := newTestCoordinator(t, link, ledger, &fakeTxLog{}, time.Second, 4)

	outcome := c.Dispense(context.Background(), dispenseReq("req-1", 3))
	assert.Equal(t, model.DispenseStatusRejected, outcome.Status)
	assert.Equal(t, ReasonInsufficientStock, outcome.Reason)
	assert.Equal(t, int32(2), ledger.quantity("rice"))

	select {
	case cmd := <-dev.commands:
		t.Fatalf("unexpected command sent: %s", cmd)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispenseLinkUnavailable(t *testing.T) {
	link := serial.NewLink(func() (io.ReadWriteCloser, error) {
		t.Fatal("opener must not be called")
		return nil, nil
	})
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	c := newTestCoordinator(t, link, ledger, &fakeTxLog{}, time.Second, 4)

	outcome := c.Dispense(context.Background(), dispenseReq("req-1", 1))
	assert.Equal(t, model.DispenseStatusRejected, outcome.Status)
	assert.Equal(t, ReasonLinkUnavailable, outcome.Reason)
	assert.Equal(t, int32(10), ledger.quantity("rice"))
}

func TestDispenseBusyWhenQueueFull(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	c := newTestCoordinator(t, link, ledger, &fakeTxLog{}, time.Second, 0)

	first := make(chan model.DispenseOutcome, 1)
	go func() { first <- c.Dispense(context.Background(), dispenseReq("req-1", 1)) }()

	dev.nextCommand(t)

	// The hardware is occupied and the queue has no capacity.
	outcome := c.Dispense(context.Background(), dispenseReq("req-2", 1))
	assert.Equal(t, model.DispenseStatusRejected, outcome.Status)
	assert.Equal(t, ReasonBusy, outcome.Reason)

	dev.send(t, "COMPLETE")
	assert.Equal(t, model.DispenseStatusCommitted, (<-first).Status)
	assert.Equal(t, int32(9), ledger.quantity("rice"))
}

func TestDispenseCancelledWhileQueued(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	c := newTestCoordinator(t, link, ledger, &fakeTxLog{}, time.Second, 2)

	first := make(chan model.DispenseOutcome, 1)
	go func() { first <- c.Dispense(context.Background(), dispenseReq("req-1", 1)) }()
	dev.nextCommand(t)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan model.DispenseOutcome, 1)
	go func() { second <- c.Dispense(ctx, dispenseReq("req-2", 1)) }()

	// Let the second request park on the gate, then abandon it while
	// the first still holds the hardware.
	time.Sleep(50 * time.Millisecond)
	cancel()

	outcome := <-second
	assert.Equal(t, model.DispenseStatusRejected, outcome.Status)
	assert.Equal(t, ReasonCancelled, outcome.Reason)

	dev.send(t, "COMPLETE")
	assert.Equal(t, model.DispenseStatusCommitted, (<-first).Status)
	assert.Equal(t, int32(9), ledger.quantity("rice"))
}

func TestDispenseLinkFaultMidSession(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	txLog := &fakeTxLog{}
	c := newTestCoordinator(t, link, ledger, txLog, time.Second, 4)

	done := make(chan model.DispenseOutcome, 1)
	go func() { done <- c.Dispense(context.Background(), dispenseReq("req-1", 1)) }()

	dev.nextCommand(t)
	require.NoError(t, dev.conn.Close())

	outcome := <-done
	assert.Equal(t, model.DispenseStatusFailed, outcome.Status)
	assert.Equal(t, ReasonLinkFault, outcome.Reason)

	assert.Equal(t, int32(10), ledger.quantity("rice"))
	assert.Empty(t, txLog.all())

	outcome = c.Dispense(context.Background(), dispenseReq("req-2", 1))
	assert.Equal(t, model.DispenseStatusRejected, outcome.Status)
	assert.Equal(t, ReasonLinkUnavailable, outcome.Reason)
}

func TestDispenseCommittedEvenWhenTxLogFails(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	txLog := &fakeTxLog{err: assert.AnError}
	c := newTestCoordinator(t, link, ledger, txLog, time.Second, 4)

	done := make(chan model.DispenseOutcome, 1)
	go func() { done <- c.Dispense(context.Background(), dispenseReq("req-1", 2)) }()

	dev.nextCommand(t)
	dev.send(t, "COMPLETE")

	// The hardware already moved the goods: the decrement stands even
	// though the audit row is lost.
	outcome := <-done
	assert.Equal(t, model.DispenseStatusCommitted, outcome.Status)
	assert.Equal(t, int64(0), outcome.TransactionId)
	assert.Equal(t, int32(8), ledger.quantity("rice"))
}

func TestConcurrentDispensesNeverOversell(t *testing.T) {
	link, dev := newReadyLink(t)
	ledger := newFakeLedger(map[string]int32{"rice": 10})
	txLog := &fakeTxLog{}
	c := newTestCoordinator(t, link, ledger, txLog, 5*time.Second, 16)

	dev.completeAll()

	const callers = 14
	outcomes := make(chan model.DispenseOutcome, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := dispenseReq(fmt.Sprintf("req-%d", i), 1)
			outcomes <- c.Dispense(context.Background(), req)
		}(i)
	}
	wg.Wait()
	close(outcomes)

	var committed, insufficient int
	for outcome := range outcomes {
		switch {
		case outcome.Status == model.DispenseStatusCommitted:
			committed++
		case outcome.Reason == ReasonInsufficientStock:
			insufficient++
		default:
			t.Fatalf("unexpected outcome: %+v", outcome)
		}
	}

	assert.Equal(t, 10, committed)
	assert.Equal(t, 4, insufficient)
	assert.Equal(t, int32(0), ledger.quantity("rice"))
	assert.Len(t, txLog.all(), 10)
	assert.Equal(t, int32(10), dev.received.Load())
}
