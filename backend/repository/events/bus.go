package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler 事件处理器
type Handler func(event Event)

// Bus 事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	inflight sync.WaitGroup
}

// NewBus 创建新的事件总线
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅指定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll 订阅所有事件
func (b *Bus) SubscribeAll(handler Handler) {
	b.Subscribe(EventAll, handler)
}

// Unsubscribe 取消订阅（通过重置该类型的所有处理器）
func (b *Bus) Unsubscribe(eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, eventType)
}

func (b *Bus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, 0, len(b.handlers[eventType])+len(b.handlers[EventAll]))
	handlers = append(handlers, b.handlers[eventType]...)
	handlers = append(handlers, b.handlers[EventAll]...)
	return handlers
}

// Publish 发布事件（异步执行所有处理器）
func (b *Bus) Publish(event Event) {
	for _, h := range b.snapshot(event.Type()) {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			dispatch(h, event)
		}(h)
	}
}

// PublishSync 发布事件（同步执行所有处理器）
func (b *Bus) PublishSync(event Event) {
	for _, h := range b.snapshot(event.Type()) {
		dispatch(h, event)
	}
}

// Wait 等待所有异步处理器执行完毕（一次性进程退出前调用）
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// HasSubscribers 检查是否有订阅者
func (b *Bus) HasSubscribers(eventType EventType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) > 0 || len(b.handlers[EventAll]) > 0
}

func dispatch(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("event", string(event.Type())).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	h(event)
}
