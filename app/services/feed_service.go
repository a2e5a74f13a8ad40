package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shashiranjanraj/veritas/pkg/event"
	"github.com/shashiranjanraj/veritas/pkg/logger"
	"github.com/shashiranjanraj/veritas/pkg/ws"
)

// FeedUpdate is the payload pushed to custody feed subscribers whenever a
// product is registered, received or sold.
type FeedUpdate struct {
	ProductID uint64    `json:"productId"`
	Kind      string    `json:"kind"`
	Entity    string    `json:"entity,omitempty"`
	At        time.Time `json:"at"`
}

// FeedService owns the websocket hub for the live custody feed and bridges
// domain events onto it. SSE clients subscribe through per-client channels.
type FeedService struct {
	hub *ws.Hub

	mu   sync.Mutex
	subs map[chan FeedUpdate]struct{}
}

func NewFeedService() *FeedService {
	s := &FeedService{
		hub:  ws.NewHub(),
		subs: map[chan FeedUpdate]struct{}{},
	}
	go s.hub.Run()

	for _, name := range []string{event.ProductRegistered, event.CustodyAppended, event.ProductSold} {
		event.Listen(name, s.publish)
	}
	return s
}

// Hub exposes the underlying hub so the route layer can upgrade
// connections onto it.
func (s *FeedService) Hub() *ws.Hub { return s.hub }

// Subscribe returns a channel of feed updates for one SSE client.
// Call the returned cancel func when the client disconnects.
func (s *FeedService) Subscribe() (<-chan FeedUpdate, func()) {
	ch := make(chan FeedUpdate, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *FeedService) publish(payload interface{}) {
	update, ok := payload.(FeedUpdate)
	if !ok {
		return
	}
	if update.At.IsZero() {
		update.At = time.Now().UTC()
	}

	data, err := json.Marshal(update)
	if err != nil {
		logger.Warn("feed: marshal update", "error", err)
		return
	}
	s.hub.Broadcast <- data

	s.mu.Lock()
	for ch := range s.subs {
		select {
		case ch <- update:
		default: // slow SSE client, drop rather than block the feed
		}
	}
	s.mu.Unlock()
}
