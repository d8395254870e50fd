package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"conductor/pkg/logging"
)

const defaultBufferSize = 64

// Memory is an in-process Bus. Each subscription owns a bounded buffer and a
// delivery goroutine, so a slow handler only delays its own subscription.
// Publish blocks while a matching buffer is full, until ctx expires.
type Memory struct {
	mu         sync.RWMutex
	subs       map[uint64]*memorySubscription
	nextID     uint64
	bufferSize int
	closed     bool
}

// NewMemory creates an in-memory bus. A bufferSize below 1 selects the default.
func NewMemory(bufferSize int) *Memory {
	if bufferSize < 1 {
		bufferSize = defaultBufferSize
	}
	return &Memory{
		subs:       make(map[uint64]*memorySubscription),
		bufferSize: bufferSize,
	}
}

type memorySubscription struct {
	id      uint64
	pattern string
	handler Handler
	queue   chan Message
	done    chan struct{}
	once    sync.Once
	bus     *Memory
}

func (s *memorySubscription) Pattern() string { return s.pattern }

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.stop()
	return nil
}

func (s *memorySubscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *memorySubscription) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.done
		cancel()
	}()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			s.deliver(ctx, msg)
		}
	}
}

func (s *memorySubscription) deliver(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Bus", fmt.Errorf("%v", r), "Handler for %s panicked on %s", s.pattern, msg.Topic)
		}
	}()
	s.handler(ctx, msg)
}

// Subscribe registers handler for every topic matching pattern.
func (m *Memory) Subscribe(pattern string, handler Handler) (Subscription, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("nil handler for pattern %s", pattern)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.nextID++
	sub := &memorySubscription{
		id:      m.nextID,
		pattern: pattern,
		handler: handler,
		queue:   make(chan Message, m.bufferSize),
		done:    make(chan struct{}),
		bus:     m,
	}
	m.subs[sub.id] = sub
	go sub.run()
	return sub, nil
}

// Publish delivers payload to every subscription matching topic.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	return m.PublishMessage(ctx, Message{Topic: topic, Payload: payload})
}

// PublishMessage delivers msg to every subscription matching msg.Topic.
func (m *Memory) PublishMessage(ctx context.Context, msg Message) error {
	if err := ValidateTopic(msg.Topic); err != nil {
		return err
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	var targets []*memorySubscription
	for _, sub := range m.subs {
		if Match(sub.pattern, msg.Topic) {
			targets = append(targets, sub)
		}
	}
	m.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.queue <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return fmt.Errorf("publishing to %s: subscriber %s is full: %w", msg.Topic, sub.pattern, ctx.Err())
		}
	}
	return nil
}

// Request implements Bus.
func (m *Memory) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	replyTo := "_reply/" + uuid.NewString()
	replies := make(chan []byte, 1)

	sub, err := m.Subscribe(replyTo, func(_ context.Context, msg Message) {
		select {
		case replies <- msg.Payload:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := m.PublishMessage(ctx, Message{Topic: topic, Payload: payload, ReplyTo: replyTo}); err != nil {
		return nil, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request on %s: %w", topic, ctx.Err())
	}
}

// Close stops every subscription. Further operations return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := m.subs
	m.subs = make(map[uint64]*memorySubscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}
