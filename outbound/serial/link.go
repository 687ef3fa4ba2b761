package serial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"ration-kiosk/common/constant"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	bserial "go.bug.st/serial"
)

var (
	ErrLinkAlreadyOpen = errors.New("dispenser link already open")
	ErrLinkClosed      = errors.New("dispenser link is not open")
	ErrSessionBusy     = errors.New("dispense session already in flight")
)

type LinkState int

const (
	StateClosed LinkState = iota
	StateOpening
	StateOpen
)

func (s LinkState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// PortOpener abstracts the physical port so tests can hand the link a
// simulated device instead of real hardware.
type PortOpener func() (io.ReadWriteCloser, error)

func SystemPortOpener(cfg *viper.Viper) PortOpener {
	return func() (io.ReadWriteCloser, error) {
		mode := &bserial.Mode{BaudRate: cfg.GetInt("serial.baud_rate")}
		port, err := bserial.Open(cfg.GetString("serial.port"), mode)
		if err != nil {
			return nil, err
		}
		return port, nil
	}
}

// Session is the hardware conversation for one in-flight request, from
// command written to terminal notice. The link owns at most one.
type Session struct {
	RequestID string
	StartedAt time.Time

	done chan Notice
}

// Done yields exactly one terminal notice: completion, device error or
// link fault.
func (s *Session) Done() <-chan Notice {
	return s.done
}

// Link owns the serial connection and the line protocol with the
// dispenser. Commands may only be sent in the open state, which is
// entered when the device announces readiness after the port opens.
// Any read error drives the link back to closed and fails the pending
// session, so callers never hang on a dead device.
type Link struct {
	mu      sync.Mutex
	open    PortOpener
	state   LinkState
	port    io.ReadWriteCloser
	pending *Session
}

func NewLink(open PortOpener) *Link {
	return &Link{open: open, state: StateClosed}
}

func (l *Link) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateClosed {
		return ErrLinkAlreadyOpen
	}

	port, err := l.open()
	if err != nil {
		return fmt.Errorf("open dispenser port: %w", err)
	}

	l.port = port
	l.state = StateOpening
	go l.readLoop(port)

	slog.Info("dispenser port opened, waiting for readiness")
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}

	port := l.port
	pending := l.pending
	l.state = StateClosed
	l.port = nil
	l.pending = nil
	l.mu.Unlock()

	if pending != nil {
		pending.done <- Notice{Kind: NoticeFault, Reason: "link fault"}
	}

	return port.Close()
}

func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) Ready() bool {
	return l.State() == StateOpen
}

// Dispense registers a session and writes the dispense command. The
// coordinator's gate serializes callers; the ErrSessionBusy check only
// enforces the one-command-in-flight protocol invariant.
func (l *Link) Dispense(requestID, item string, quantity int32) (*Session, error) {
	l.mu.Lock()
	if l.state != StateOpen {
		l.mu.Unlock()
		return nil, ErrLinkClosed
	}
	if l.pending != nil {
		l.mu.Unlock()
		return nil, ErrSessionBusy
	}

	s := &Session{
		RequestID: requestID,
		StartedAt: time.Now(),
		done:      make(chan Notice, 1),
	}
	l.pending = s
	port := l.port
	l.mu.Unlock()

	if _, err := port.Write(formatDispenseCommand(item, quantity)); err != nil {
		l.fault(fmt.Errorf("write dispense command: %w", err))
		return nil, fmt.Errorf("write dispense command: %w", err)
	}

	slog.Debug("dispense command sent",
		slog.String("request_id", requestID),
		slog.String("item", item),
		slog.Int("quantity", int(quantity)),
	)

	return s, nil
}

// Abandon drops a session that timed out on the host side. A terminal
// notice arriving later is then logged as an anomaly and discarded.
func (l *Link) Abandon(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == s {
		l.pending = nil
	}
}

func (l *Link) readLoop(port io.ReadWriteCloser) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		n := parseNotice(line)
		switch n.Kind {
		case NoticeReady:
			l.markReady()
		case NoticeComplete, NoticeError:
			l.resolve(n)
		default:
			slog.Warn("unrecognized dispenser message", slog.String("raw", n.Raw))
		}
	}

	l.fault(scanner.Err())
}

func (l *Link) markReady() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateOpening {
		l.state = StateOpen
		slog.Info("dispenser ready")
		return
	}

	// A device reset announces READY again mid-connection.
	slog.Warn("readiness notice outside opening state", slog.String("state", l.state.String()))
}

func (l *Link) resolve(n Notice) {
	l.mu.Lock()
	s := l.pending
	l.pending = nil
	l.mu.Unlock()

	if s == nil {
		slog.Warn("dispenser notice with no session in flight", slog.String("raw", n.Raw))
		return
	}

	s.done <- n
}

// fault tears the link down after a read or write error and fails the
// pending session so the coordinator can release its reservation.
func (l *Link) fault(err error) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}

	port := l.port
	s := l.pending
	l.state = StateClosed
	l.port = nil
	l.pending = nil
	l.mu.Unlock()

	if err != nil {
		slog.Error("dispenser link fault", slog.Any(constant.LogFieldErr, err))
	} else {
		slog.Warn("dispenser link closed by device")
	}

	if port != nil {
		_ = port.Close()
	}

	if s != nil {
		s.done <- Notice{Kind: NoticeFault, Reason: "link fault"}
	}
}
