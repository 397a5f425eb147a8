package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudx-io/streamauction/auctionapi"
)

const (
	feedBufferSize   = 16
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Feed fans leaderboard updates out to websocket subscribers. A subscriber that falls
// feedBufferSize messages behind is disconnected.
type Feed struct {
	mu          sync.Mutex
	subscribers map[*feedSubscriber]struct{}
}

type feedSubscriber struct {
	send chan []byte
}

// NewFeed returns a Feed without subscribers.
func NewFeed() *Feed {
	return &Feed{subscribers: make(map[*feedSubscriber]struct{})}
}

func (f *Feed) subscribe() *feedSubscriber {
	sub := &feedSubscriber{send: make(chan []byte, feedBufferSize)}
	f.mu.Lock()
	f.subscribers[sub] = struct{}{}
	n := len(f.subscribers)
	f.mu.Unlock()
	mtxFeedSubscribers.Set(float64(n))
	return sub
}

func (f *Feed) unsubscribe(sub *feedSubscriber) {
	f.mu.Lock()
	if _, ok := f.subscribers[sub]; ok {
		delete(f.subscribers, sub)
		close(sub.send)
	}
	n := len(f.subscribers)
	f.mu.Unlock()
	mtxFeedSubscribers.Set(float64(n))
}

// Subscribers is the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Publish sends msg to every subscriber without blocking.
func (f *Feed) Publish(msg auctionapi.FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ERROR: Failed to encode feed message: %v", err)
		return
	}

	f.mu.Lock()
	var slow []*feedSubscriber
	for sub := range f.subscribers {
		select {
		case sub.send <- data:
		default:
			slow = append(slow, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range slow {
		log.Printf("WARNING: Dropping slow feed subscriber")
		f.unsubscribe(sub)
	}
}

// ServeWS upgrades the request and streams feed messages, starting with initial, until the
// client goes away.
func (f *Feed) ServeWS(w http.ResponseWriter, r *http.Request, initial auctionapi.FeedMessage) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: Feed upgrade failed: %v", err)
		return
	}

	first, err := json.Marshal(initial)
	if err != nil {
		log.Printf("ERROR: Failed to encode feed message: %v", err)
		_ = conn.Close()
		return
	}

	sub := f.subscribe()
	go f.writeLoop(conn, sub, first)

	// Subscribers only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.unsubscribe(sub)
}

func (f *Feed) writeLoop(conn *websocket.Conn, sub *feedSubscriber, first []byte) {
	ticker := time.NewTicker(feedPingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	write := func(messageType int, data []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		return conn.WriteMessage(messageType, data)
	}

	if err := write(websocket.TextMessage, first); err != nil {
		f.unsubscribe(sub)
		return
	}

	for {
		select {
		case data, ok := <-sub.send:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				f.unsubscribe(sub)
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				f.unsubscribe(sub)
				return
			}
		}
	}
}
