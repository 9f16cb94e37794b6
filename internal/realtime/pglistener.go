package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyChannel is the channel the audit_notify() trigger publishes on
const NotifyChannel = "audit_changes"

// PGListener forwards PostgreSQL notifications into a Publisher
type PGListener struct {
	dsn       string
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPGListener creates a listener for the database at dsn
func NewPGListener(dsn string, publisher Publisher, logger *zap.Logger) *PGListener {
	return &PGListener{
		dsn:       dsn,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Run listens until ctx is done. pq reconnects on its own; notifications
// sent while disconnected are lost.
func (l *PGListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 10*time.Second, time.Minute, l.onEvent)
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	l.logger.Info("Listening for database changes", zap.String("channel", NotifyChannel))

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				// connection was re-established
				continue
			}
			l.handle(n.Extra)
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("Database listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (l *PGListener) handle(payload string) {
	change, err := ParseNotification(payload, l.now())
	if err != nil {
		l.logger.Warn("Ignoring malformed change notification", zap.Error(err))
		return
	}
	l.publisher.Publish(change)
}

func (l *PGListener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("Database listener connection failed", zap.Error(err))
	case pq.ListenerEventDisconnected:
		l.logger.Warn("Database listener disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		l.logger.Info("Database listener reconnected")
	}
}

// ParseNotification decodes a trigger payload into a remote change
func ParseNotification(payload string, at time.Time) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	switch c.Table {
	case TableProjects, TableWeeks, TableEvents:
	default:
		return Change{}, fmt.Errorf("notification for unknown table %q", c.Table)
	}
	switch c.Type {
	case Insert, Update, Delete:
	default:
		return Change{}, fmt.Errorf("notification with unknown type %q", c.Type)
	}
	if c.ID == "" {
		return Change{}, fmt.Errorf("notification without id")
	}
	if c.Table == TableProjects && c.ProjectID == "" {
		c.ProjectID = c.ID
	}
	c.Source = SourceRemote
	c.At = at.UTC()
	return c, nil
}
