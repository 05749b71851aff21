package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatelink-dev/gatelink/pkg/hub"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second

	// feedSendBuffer is each subscriber's queue. A subscriber that falls
	// this far behind is dropped rather than allowed to stall the feed.
	feedSendBuffer = 64
)

// FeedEvent is one message pushed to /feed subscribers.
type FeedEvent struct {
	// Kind is "update" for a channel update, "reload" for a device
	// deletion.
	Kind     string         `json:"kind"`
	HubID    string         `json:"hub_id"`
	DeviceID string         `json:"device_id"`
	Channel  string         `json:"channel,omitempty"`
	DevType  int64          `json:"devtype,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// feed fans session deltas out to websocket subscribers.
type feed struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	subs    map[*feedClient]struct{}
	closing bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func newFeed(logger *slog.Logger) *feed {
	return &feed{
		logger: logger.With("component", "feed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		subs: make(map[*feedClient]struct{}),
	}
}

func (f *feed) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("feed upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		conn: conn,
		send: make(chan []byte, feedSendBuffer),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closing {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.subs[c] = struct{}{}
	f.mu.Unlock()
	f.logger.Debug("feed subscriber connected", "remote", conn.RemoteAddr())

	go f.writeLoop(c)
	go f.readLoop(c)
}

// broadcast queues a delta for every subscriber, dropping subscribers
// whose queue is full.
func (f *feed) broadcast(d hub.Delta) {
	var ev FeedEvent
	switch d := d.(type) {
	case hub.ChannelUpdate:
		ev = FeedEvent{
			Kind:     "update",
			HubID:    d.HubID,
			DeviceID: d.DeviceID,
			Channel:  d.Channel,
			DevType:  d.DevType,
			Fields:   d.Fields,
		}
	case hub.DeviceDeleted:
		ev = FeedEvent{
			Kind:     "reload",
			HubID:    d.HubID,
			DeviceID: d.DeviceID,
		}
	default:
		return
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		f.logger.Warn("feed event marshal failed", "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.subs {
		select {
		case c.send <- msg:
		default:
			f.logger.Debug("dropping slow feed subscriber",
				"remote", c.conn.RemoteAddr())
			delete(f.subs, c)
			c.close()
		}
	}
}

// writeLoop pumps the send queue onto the socket and keeps the
// connection alive with pings.
func (f *feed) writeLoop(c *feedClient) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				f.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.drop(c)
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// readLoop discards inbound messages; the feed is one-way, but reading
// is what surfaces close frames and ping replies.
func (f *feed) readLoop(c *feedClient) {
	defer f.drop(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				f.logger.Debug("feed subscriber read error", "error", err)
			}
			return
		}
	}
}

func (f *feed) drop(c *feedClient) {
	f.mu.Lock()
	delete(f.subs, c)
	f.mu.Unlock()
	c.close()
}

func (c *feedClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// subscriberCount reports the number of live subscribers.
func (f *feed) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// closeAll disconnects every subscriber and refuses new ones.
func (f *feed) closeAll() {
	f.mu.Lock()
	f.closing = true
	subs := make([]*feedClient, 0, len(f.subs))
	for c := range f.subs {
		subs = append(subs, c)
	}
	f.subs = make(map[*feedClient]struct{})
	f.mu.Unlock()

	for _, c := range subs {
		c.close()
	}
}
