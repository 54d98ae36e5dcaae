// Package events provides a publish/subscribe bus that decouples signal
// detection, order execution, and the read-only API/websocket layer: the
// orchestrator publishes signal/order/fill/heartbeat events, and the API
// server subscribes to forward them onto the live websocket stream.
package events

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventType defines the category of event
type EventType string

const (
	// Trading events
	EventTypeSignal EventType = "signal"
	EventTypeOrder  EventType = "order"
	EventTypeFill   EventType = "fill"

	// Risk events
	EventTypeRiskAlert EventType = "risk_alert"

	// System events
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeError     EventType = "error"

	// Portfolio events
	EventTypePosition EventType = "position"
	EventTypeBalance  EventType = "balance"
)

// Event is the base interface for all trading events
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) GetType() EventType      { return e.Type }
func (e *BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e *BaseEvent) GetID() string           { return e.ID }

var eventCounter atomic.Int64

func generateEventID() string {
	id := eventCounter.Add(1)
	return "evt_" + time.Now().Format("20060102150405") + "_" + itoa(id)
}

func newBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{ID: generateEventID(), Type: eventType, Timestamp: time.Now()}
}

// SignalEvent announces a freshly detected Turtle signal.
type SignalEvent struct {
	BaseEvent
	Symbol        string          `json:"symbol"`
	SignalType    string          `json:"signal_type"`
	System        int             `json:"system"`
	Price         decimal.Decimal `json:"price"`
	ATRN          decimal.Decimal `json:"atr_n"`
	BreakoutLevel decimal.Decimal `json:"breakout_level"`
}

// NewSignalEvent creates a SignalEvent with a generated ID and timestamp.
func NewSignalEvent(symbol, signalType string, system int, price, atrN, breakoutLevel decimal.Decimal) *SignalEvent {
	return &SignalEvent{
		BaseEvent:     newBaseEvent(EventTypeSignal),
		Symbol:        symbol,
		SignalType:    signalType,
		System:        system,
		Price:         price,
		ATRN:          atrN,
		BreakoutLevel: breakoutLevel,
	}
}

// OrderEvent announces an order placed with the broker.
type OrderEvent struct {
	BaseEvent
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Method   string          `json:"method"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Status   string          `json:"status"`
}

// NewOrderEvent creates an OrderEvent with a generated ID and timestamp.
func NewOrderEvent(symbol, side, method string, quantity int64, price decimal.Decimal, status string) *OrderEvent {
	return &OrderEvent{
		BaseEvent: newBaseEvent(EventTypeOrder),
		Symbol:    symbol,
		Side:      side,
		Method:    method,
		Quantity:  quantity,
		Price:     price,
		Status:    status,
	}
}

// FillEvent announces a completed entry, pyramid, or exit.
type FillEvent struct {
	BaseEvent
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   int64           `json:"quantity"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	PnL        decimal.Decimal `json:"pnl,omitempty"`
	ExitReason string          `json:"exit_reason,omitempty"`
}

// NewFillEvent creates a FillEvent with a generated ID and timestamp.
func NewFillEvent(symbol, side string, quantity int64, fillPrice, pnl decimal.Decimal, exitReason string) *FillEvent {
	return &FillEvent{
		BaseEvent:  newBaseEvent(EventTypeFill),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		FillPrice:  fillPrice,
		PnL:        pnl,
		ExitReason: exitReason,
	}
}

// RiskAlertEvent announces a rejected entry/pyramid or a breached risk cap.
type RiskAlertEvent struct {
	BaseEvent
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"` // "info", "warning", "critical"
	Symbol    string `json:"symbol,omitempty"`
	Message   string `json:"message"`
}

// NewRiskAlertEvent creates a RiskAlertEvent with a generated ID and timestamp.
func NewRiskAlertEvent(alertType, severity, symbol, message string) *RiskAlertEvent {
	return &RiskAlertEvent{
		BaseEvent: newBaseEvent(EventTypeRiskAlert),
		AlertType: alertType,
		Severity:  severity,
		Symbol:    symbol,
		Message:   message,
	}
}

// PositionEvent announces a position opening, pyramiding, or closing.
type PositionEvent struct {
	BaseEvent
	Symbol        string          `json:"symbol"`
	Status        string          `json:"status"` // "open" or "closed"
	Quantity      int64           `json:"quantity"`
	Units         int             `json:"units"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl,omitempty"`
}

// NewPositionEvent creates a PositionEvent with a generated ID and timestamp.
func NewPositionEvent(symbol, status string, quantity int64, units int, entryPrice, stopLossPrice, unrealizedPnL decimal.Decimal) *PositionEvent {
	return &PositionEvent{
		BaseEvent:     newBaseEvent(EventTypePosition),
		Symbol:        symbol,
		Status:        status,
		Quantity:      quantity,
		Units:         units,
		EntryPrice:    entryPrice,
		StopLossPrice: stopLossPrice,
		UnrealizedPnL: unrealizedPnL,
	}
}

// HeartbeatEvent announces a market's cycle liveness tick.
type HeartbeatEvent struct {
	BaseEvent
	Market string `json:"market"`
}

// NewHeartbeatEvent creates a HeartbeatEvent with a generated ID and timestamp.
func NewHeartbeatEvent(market string) *HeartbeatEvent {
	return &HeartbeatEvent{
		BaseEvent: newBaseEvent(EventTypeHeartbeat),
		Market:    market,
	}
}

// EventHandler is a function that processes events
type EventHandler func(event Event) error

// EventFilter can selectively process events
type EventFilter func(event Event) bool

// SubscriptionOptions configures subscription behavior
type SubscriptionOptions struct {
	Filter     EventFilter // Optional filter
	Async      bool        // Process in separate goroutine (default: true)
	BufferSize int         // Channel buffer size for async
}

// Subscription represents an active event subscription
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	Options   SubscriptionOptions
	active    atomic.Bool
}

// IsActive returns whether subscription is active
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// EventBusStats tracks performance metrics
type EventBusStats struct {
	EventsPublished   int64         `json:"events_published"`
	EventsProcessed   int64         `json:"events_processed"`
	TotalProcessed    int64         `json:"total_processed"` // Alias for EventsProcessed
	EventsDropped     int64         `json:"events_dropped"`
	ProcessingErrors  int64         `json:"processing_errors"`
	AvgLatencyNs      int64         `json:"avg_latency_ns"`
	MaxLatencyNs      int64         `json:"max_latency_ns"`
	P99LatencyNs      int64         `json:"p99_latency_ns"`
	P99Latency        time.Duration `json:"p99_latency"` // Convenience field
	ActiveSubscribers int64         `json:"active_subscribers"`
}

// EventBusConfig configures the event bus.
type EventBusConfig struct {
	NumWorkers int `json:"numWorkers"`
	BufferSize int `json:"bufferSize"`
}

// DefaultEventBusConfig returns sensible defaults for a system that emits at
// most a few dozen events per trading cycle.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		NumWorkers: 4,
		BufferSize: 1000,
	}
}

// EventBus is the central event routing system.
type EventBus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription // Subscribe to all events

	// Performance
	eventChan   chan Event
	workerCount int

	// Stats
	eventsPublished   atomic.Int64
	eventsProcessed   atomic.Int64
	eventsDropped     atomic.Int64
	processingErrors  atomic.Int64
	activeSubscribers atomic.Int64

	// Latency tracking
	latencies  []int64
	latencyMu  sync.Mutex
	maxLatency atomic.Int64
	avgLatency atomic.Int64

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewEventBus creates an event bus.
// workerCount: number of goroutines processing events (default: 4)
// bufferSize: event channel buffer size (default: 1000)
func NewEventBus(logger *zap.Logger, config EventBusConfig) *EventBus {
	workerCount := config.NumWorkers
	bufferSize := config.BufferSize

	if workerCount <= 0 {
		workerCount = 4
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())

	eb := &EventBus{
		subscribers:    make(map[EventType][]*Subscription),
		allSubscribers: make([]*Subscription, 0),
		eventChan:      make(chan Event, bufferSize),
		workerCount:    workerCount,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
		latencies:      make([]int64, 0, 10000),
	}

	for i := 0; i < workerCount; i++ {
		eb.wg.Add(1)
		go eb.worker(i)
	}

	eb.logger.Info("event_bus_initialized",
		zap.Int("workers", workerCount),
		zap.Int("buffer_size", bufferSize),
	)

	return eb
}

// worker processes events from the channel
func (eb *EventBus) worker(id int) {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.ctx.Done():
			return
		case event := <-eb.eventChan:
			startTime := time.Now()
			eb.processEvent(event)

			// Track latency
			latency := time.Since(startTime).Nanoseconds()
			eb.trackLatency(latency)
		}
	}
}

// processEvent routes event to subscribers
func (eb *EventBus) processEvent(event Event) {
	eb.mu.RLock()
	subs := eb.subscribers[event.GetType()]
	allSubs := eb.allSubscribers
	eb.mu.RUnlock()

	// Process type-specific subscribers
	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}

		// Apply filter if present
		if sub.Options.Filter != nil && !sub.Options.Filter(event) {
			continue
		}

		if sub.Options.Async {
			go eb.executeHandler(sub, event)
		} else {
			eb.executeHandler(sub, event)
		}
	}

	// Process "all events" subscribers
	for _, sub := range allSubs {
		if !sub.active.Load() {
			continue
		}

		if sub.Options.Filter != nil && !sub.Options.Filter(event) {
			continue
		}

		if sub.Options.Async {
			go eb.executeHandler(sub, event)
		} else {
			eb.executeHandler(sub, event)
		}
	}

	eb.eventsProcessed.Add(1)
}

// executeHandler safely executes a handler with panic recovery
func (eb *EventBus) executeHandler(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.processingErrors.Add(1)
			eb.logger.Error("event_handler_panic",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(event.GetType())),
				zap.Any("panic", r),
			)
		}
	}()

	if err := sub.Handler(event); err != nil {
		eb.processingErrors.Add(1)
		eb.logger.Warn("event_handler_error",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", string(event.GetType())),
			zap.Error(err),
		)
	}
}

// trackLatency records processing latency
func (eb *EventBus) trackLatency(latencyNs int64) {
	eb.latencyMu.Lock()
	defer eb.latencyMu.Unlock()

	eb.latencies = append(eb.latencies, latencyNs)

	// Keep only last 10K samples
	if len(eb.latencies) > 10000 {
		eb.latencies = eb.latencies[5000:]
	}

	// Update max latency
	currentMax := eb.maxLatency.Load()
	if latencyNs > currentMax {
		eb.maxLatency.Store(latencyNs)
	}

	// Update average (exponential moving average)
	currentAvg := eb.avgLatency.Load()
	newAvg := (currentAvg*99 + latencyNs) / 100
	eb.avgLatency.Store(newAvg)
}

var subscriptionCounter atomic.Int64

func generateSubscriptionID() string {
	id := subscriptionCounter.Add(1)
	return "sub_" + time.Now().Format("20060102150405") + "_" + itoa(id)
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}

	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}

	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}

	if neg {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}

// Subscribe registers a handler for an event type
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	options := SubscriptionOptions{
		Async:      true,
		BufferSize: 1000,
	}
	if len(opts) > 0 {
		options = opts[0]
	}

	sub := &Subscription{
		ID:        generateSubscriptionID(),
		EventType: eventType,
		Handler:   handler,
		Options:   options,
	}
	sub.active.Store(true)

	eb.subscribers[eventType] = append(eb.subscribers[eventType], sub)
	eb.activeSubscribers.Add(1)

	eb.logger.Debug("subscription_added",
		zap.String("id", sub.ID),
		zap.String("event_type", string(eventType)),
	)

	return sub
}

// SubscribeAll registers a handler for all event types
func (eb *EventBus) SubscribeAll(handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	options := SubscriptionOptions{
		Async:      true,
		BufferSize: 1000,
	}
	if len(opts) > 0 {
		options = opts[0]
	}

	sub := &Subscription{
		ID:        generateSubscriptionID(),
		EventType: "*",
		Handler:   handler,
		Options:   options,
	}
	sub.active.Store(true)

	eb.allSubscribers = append(eb.allSubscribers, sub)
	eb.activeSubscribers.Add(1)

	return sub
}

// SubscribeMultiple registers a handler for multiple event types
func (eb *EventBus) SubscribeMultiple(eventTypes []EventType, handler EventHandler, opts ...SubscriptionOptions) []*Subscription {
	subs := make([]*Subscription, len(eventTypes))
	for i, eventType := range eventTypes {
		subs[i] = eb.Subscribe(eventType, handler, opts...)
	}
	return subs
}

// Unsubscribe removes a subscription
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
	eb.activeSubscribers.Add(-1)
}

// Publish sends an event to all subscribers (non-blocking)
// If the buffer is full, the event is dropped and counted
func (eb *EventBus) Publish(event Event) {
	select {
	case eb.eventChan <- event:
		eb.eventsPublished.Add(1)
	default:
		// Buffer full - drop event
		eb.eventsDropped.Add(1)
		eb.logger.Warn("event_dropped_buffer_full",
			zap.String("event_type", string(event.GetType())),
		)
	}
}

// PublishSync sends an event and waits for processing (blocking)
func (eb *EventBus) PublishSync(event Event) {
	eb.eventsPublished.Add(1)
	eb.processEvent(event)
}

// GetStats returns current performance statistics
func (eb *EventBus) GetStats() EventBusStats {
	p99Ns := eb.GetP99LatencyNs()
	eventsProcessed := eb.eventsProcessed.Load()
	return EventBusStats{
		EventsPublished:   eb.eventsPublished.Load(),
		EventsProcessed:   eventsProcessed,
		TotalProcessed:    eventsProcessed, // Alias
		EventsDropped:     eb.eventsDropped.Load(),
		ProcessingErrors:  eb.processingErrors.Load(),
		AvgLatencyNs:      eb.avgLatency.Load(),
		MaxLatencyNs:      eb.maxLatency.Load(),
		P99LatencyNs:      p99Ns,
		P99Latency:        time.Duration(p99Ns),
		ActiveSubscribers: eb.activeSubscribers.Load(),
	}
}

// GetP99LatencyNs calculates the 99th percentile latency in nanoseconds
func (eb *EventBus) GetP99LatencyNs() int64 {
	eb.latencyMu.Lock()
	defer eb.latencyMu.Unlock()

	if len(eb.latencies) == 0 {
		return 0
	}

	// Sort copy of latencies
	sorted := make([]int64, len(eb.latencies))
	copy(sorted, eb.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

// GetP99Latency returns P99 latency as time.Duration
func (eb *EventBus) GetP99Latency() time.Duration {
	return time.Duration(eb.GetP99LatencyNs())
}

// Start begins processing events (workers are already started in constructor)
func (eb *EventBus) Start(ctx context.Context) error {
	eb.logger.Info("event_bus_started",
		zap.Int("workers", eb.workerCount),
	)
	return nil
}

// Stop shuts down the event bus gracefully
func (eb *EventBus) Stop() {
	eb.logger.Info("event_bus_shutting_down")
	eb.cancel()

	// Wait for workers with timeout
	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Info("event_bus_shutdown_complete",
			zap.Int64("events_processed", eb.eventsProcessed.Load()),
			zap.Int64("events_dropped", eb.eventsDropped.Load()),
		)
	case <-time.After(5 * time.Second):
		eb.logger.Warn("event_bus_shutdown_timed_out")
	}
}

// Close is an alias for Stop (for backwards compatibility)
func (eb *EventBus) Close() {
	eb.Stop()
}
