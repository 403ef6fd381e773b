package runtime

import (
	"fmt"
	"sync"

	"github.com/dealforge/dealforge-backend/internal/events"
)

type Handler interface {
	Run(jc *Context) error
}

type HandlerFunc func(jc *Context) error

func (f HandlerFunc) Run(jc *Context) error { return f(jc) }

// Subscription binds one subscriber to one event name with its own retry
// budget. FailsJob marks workflow subscriptions whose retry exhaustion is a
// job-level failure; the notification subscriber sets it false so an email
// outage can never fail a job.
type Subscription struct {
	Event       string
	Subscriber  string
	MaxAttempts int
	FailsJob    bool
	Handler     Handler
}

type Registry struct {
	mu   sync.RWMutex
	subs map[string]Subscription
	keys []string
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]Subscription)}
}

func subKey(event, subscriber string) string { return event + "→" + subscriber }

func (r *Registry) Register(sub Subscription) error {
	if sub.Handler == nil {
		return fmt.Errorf("nil handler")
	}
	if sub.Event == "" || sub.Subscriber == "" {
		return fmt.Errorf("event and subscriber required")
	}
	if sub.MaxAttempts <= 0 {
		sub.MaxAttempts = 3
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := subKey(sub.Event, sub.Subscriber)
	if _, exists := r.subs[key]; exists {
		return fmt.Errorf("subscription already registered for %s", key)
	}
	r.subs[key] = sub
	r.keys = append(r.keys, key)
	return nil
}

func (r *Registry) Get(event, subscriber string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[subKey(event, subscriber)]
	return sub, ok
}

// Specs exposes the registered subscriptions to the bus so Emit can fan out
// one delivery row per subscriber.
func (r *Registry) Specs() []events.SubscriptionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]events.SubscriptionSpec, 0, len(r.keys))
	for _, key := range r.keys {
		sub := r.subs[key]
		out = append(out, events.SubscriptionSpec{
			Event:       sub.Event,
			Subscriber:  sub.Subscriber,
			MaxAttempts: sub.MaxAttempts,
		})
	}
	return out
}
