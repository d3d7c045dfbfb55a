// Package router implements Component B of SPEC_FULL.md: it looks up the
// configured routes for a dispatched event, fans the event out to every
// matched endpoint concurrently through a Forwarder, and aggregates
// delivery statistics.
package router

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rubiojr/discord-bridge/internal/config"
	"github.com/rubiojr/discord-bridge/internal/forwarder"
	"github.com/rubiojr/discord-bridge/internal/log"
)

var logger = log.ForService("router")

// Stats is an immutable snapshot of the Router's counters
// (SPEC_FULL.md §3).
type Stats struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsForwarded uint64 `json:"events_forwarded"`
	EventsFailed    uint64 `json:"events_failed"`
	RoutesProcessed uint64 `json:"routes_processed"`
}

// Router fans dispatched Discord events out to configured HTTP endpoints.
// It is the Gateway Session's dispatch callback target: Supervisor wires
// Router.HandleEvent as the Session's OnDispatch.
type Router struct {
	forwarder *forwarder.Forwarder

	routesMu sync.RWMutex
	routes   []config.Route

	stats Stats // accessed only via atomic ops on its fields

	hub *EventHub
}

// New builds a Router over the given routes and forwarder configuration.
func New(routes []config.Route, fwdCfg forwarder.Config) *Router {
	return &Router{
		forwarder: forwarder.New(fwdCfg),
		routes:    routes,
		hub:       NewEventHub(32),
	}
}

// Start begins the Router's lifecycle. The Forwarder has no background
// state of its own (it wraps a stateless http.Client), so Start is
// bookkeeping plus the log line the Supervisor's startup sequence expects.
func (r *Router) Start() {
	logger.Infof("event router started")
}

// Stop ends the Router's lifecycle. It only logs the counters as they
// stand when it is called; it does not wait for HandleEvent calls still in
// progress, so deliveries that finish after Stop are not in that log line.
func (r *Router) Stop() {
	s := r.Stats()
	logger.Infof("event router stopped: received=%d forwarded=%d failed=%d routes_processed=%d",
		s.EventsReceived, s.EventsForwarded, s.EventsFailed, s.RoutesProcessed)
}

// SetRoutes atomically swaps the route table, used for the hot-reload
// path described in SPEC_FULL.md §6.4. In-flight deliveries under the old
// table are unaffected.
func (r *Router) SetRoutes(routes []config.Route) {
	r.routesMu.Lock()
	r.routes = routes
	r.routesMu.Unlock()
}

// routesForEvent delegates to config.Config.RoutesForEvent, the sole
// route-lookup implementation, rather than re-filtering r.routes inline.
func (r *Router) routesForEvent(eventName string) []config.Route {
	r.routesMu.RLock()
	defer r.routesMu.RUnlock()

	return (&config.Config{Routes: r.routes}).RoutesForEvent(eventName)
}

// HandleEvent implements the algorithm of SPEC_FULL.md §4.B: increment
// events_received, look up enabled routes for eventType, fan the event out
// concurrently to every (route, endpoint) pair, await all deliveries, then
// update the aggregate counters. It is safe to call concurrently for
// unrelated events; ordering across endpoints within one event is not
// guaranteed (§5).
func (r *Router) HandleEvent(ctx context.Context, eventType string, data json.RawMessage) {
	atomic.AddUint64(&r.stats.EventsReceived, 1)

	routes := r.routesForEvent(eventType)
	if len(routes) == 0 {
		return
	}

	var endpoints []string
	for _, route := range routes {
		endpoints = append(endpoints, route.Endpoints...)
	}

	logger.Infof("processing %s event with %d endpoint(s)", eventType, len(endpoints))

	results := make(chan bool, len(endpoints))
	var wg sync.WaitGroup
	for _, endpoint := range endpoints {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			results <- r.forwardSafely(ctx, endpoint, eventType, data)
		}(endpoint)
	}
	wg.Wait()
	close(results)

	var succeeded, failed int
	for ok := range results {
		if ok {
			succeeded++
		} else {
			failed++
		}
	}

	atomic.AddUint64(&r.stats.EventsForwarded, uint64(succeeded))
	atomic.AddUint64(&r.stats.EventsFailed, uint64(failed))
	atomic.AddUint64(&r.stats.RoutesProcessed, 1)

	logger.Infof("forwarded %s event: %d success(es), %d failure(s)", eventType, succeeded, failed)
	r.hub.Broadcast(DeliveryEvent{EventType: eventType, Succeeded: succeeded, Failed: failed})
}

// forwardSafely calls the Forwarder and converts any panic into a false
// result, per SPEC_FULL.md §4.B step 4: one bad endpoint must never take
// down HandleEvent's aggregation.
func (r *Router) forwardSafely(ctx context.Context, endpoint, eventType string, data json.RawMessage) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("recovered panic forwarding %s to %s: %v", eventType, endpoint, rec)
			ok = false
		}
	}()
	return r.forwarder.Forward(ctx, endpoint, eventType, data)
}

// Stats returns a consistent snapshot of the current counters.
func (r *Router) Stats() Stats {
	return Stats{
		EventsReceived:  atomic.LoadUint64(&r.stats.EventsReceived),
		EventsForwarded: atomic.LoadUint64(&r.stats.EventsForwarded),
		EventsFailed:    atomic.LoadUint64(&r.stats.EventsFailed),
		RoutesProcessed: atomic.LoadUint64(&r.stats.RoutesProcessed),
	}
}

// ResetStats zeroes all counters.
func (r *Router) ResetStats() {
	atomic.StoreUint64(&r.stats.EventsReceived, 0)
	atomic.StoreUint64(&r.stats.EventsForwarded, 0)
	atomic.StoreUint64(&r.stats.EventsFailed, 0)
	atomic.StoreUint64(&r.stats.RoutesProcessed, 0)
}

// Subscribe registers a listener for per-event delivery outcomes. Callers
// must Unsubscribe when done.
func (r *Router) Subscribe() (uint64, <-chan DeliveryEvent) {
	return r.hub.Register()
}

// Unsubscribe removes a listener registered via Subscribe.
func (r *Router) Unsubscribe(id uint64) {
	r.hub.Unregister(id)
}
