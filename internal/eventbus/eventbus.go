package eventbus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mescon/Linkarr/internal/db"
	"github.com/mescon/Linkarr/internal/domain"
	"github.com/mescon/Linkarr/internal/logger"
)

// Publisher defines the interface for publishing events.
// This interface enables testing with mock implementations.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

// Ensure EventBus implements Publisher
var _ Publisher = (*EventBus)(nil)

// EventBus persists every published event to the events table and fans it
// out to in-memory subscribers. The database row is the source of truth;
// subscriber delivery is best-effort.
type EventBus struct {
	db          *sql.DB
	subscribers map[domain.EventType][]chan domain.Event
	mu          sync.RWMutex
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewEventBus(db *sql.DB) *EventBus {
	return &EventBus{
		db:          db,
		subscribers: make(map[domain.EventType][]chan domain.Event),
		stopChan:    make(chan struct{}),
	}
}

func (eb *EventBus) Publish(event domain.Event) error {
	logger.Debugf("EventBus: publishing %s (aggregate: %s)", event.EventType, event.AggregateID)

	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC() // UTC for consistent SQLite date parsing
	}

	res, err := db.ExecWithRetry(eb.db, `
        INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, event.AggregateType, event.AggregateID, event.EventType, eventDataJSON, event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[event.EventType] {
		select {
		case ch <- event:
		default:
			// Non-blocking; drop if the subscriber's buffer is full so the
			// publisher never stalls the pipeline.
		}
	}

	return nil
}

func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	ch := make(chan domain.Event, 100)

	eb.mu.Lock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	eb.mu.Unlock()

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				handler(event)
			case <-eb.stopChan:
				return
			}
		}
	}()
}

// Shutdown stops all subscriber goroutines and waits for them to finish.
func (eb *EventBus) Shutdown() {
	close(eb.stopChan)
	eb.wg.Wait()
	logger.Infof("EventBus shutdown complete")
}
