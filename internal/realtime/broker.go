package realtime

import (
	"sync"

	"go.uber.org/zap"
)

const defaultBufferSize = 64

// Broker fans changes out to filtered subscribers. It is safe for
// concurrent use.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	logger *zap.Logger
}

// Subscription receives the changes matching its filter on C until
// Unsubscribe is called, which closes C.
type Subscription struct {
	C      <-chan Change
	Filter Filter

	id     uint64
	ch     chan Change
	feed   *Feed
	broker *Broker
	once   sync.Once
}

// NewBroker creates a broker whose subscribers buffer up to buffer changes
func NewBroker(buffer int, logger *zap.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Broker{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for filter
func (b *Broker) Subscribe(filter Filter) *Subscription {
	ch := make(chan Change, b.buffer)

	b.mu.Lock()
	b.nextID++
	sub := &Subscription{
		C:      ch,
		Filter: filter,
		id:     b.nextID,
		ch:     ch,
		feed:   NewFeed(filter),
		broker: b,
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	b.logger.Debug("Realtime subscriber added", zap.String("filter", filter.String()))
	return sub
}

// Publish delivers c to every matching subscriber without blocking. A
// subscriber whose buffer is full misses the change.
func (b *Broker) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.feed.Apply(c) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			b.logger.Warn("Dropping change for slow subscriber",
				zap.String("filter", sub.Filter.String()),
				zap.String("table", c.Table),
				zap.String("id", c.ID),
			)
		}
	}
}

// Subscribers returns the number of active subscriptions
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Unsubscribe removes the subscription and closes C. It is safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.id)
		s.broker.mu.Unlock()
		close(s.ch)
	})
}

// Items returns the rows this subscription has seen, oldest first
func (s *Subscription) Items() []Change {
	return s.feed.Items()
}
