// Package stream fans ride changes out to WebSocket clients, locally and
// across instances through Redis pub/sub.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "ride:"
	channelSuffix  = ":changes"
	channelPattern = channelPrefix + "*" + channelSuffix

	clientBuffer  = 64
	publishBuffer = 256
)

type Hub struct {
	id      string
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	publish chan envelope
	ready   chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

type Client struct {
	ScooterID string
	Send      chan []byte
}

// envelope is the Redis message body. Origin lets a hub skip its own
// publications, which it has already delivered locally.
type envelope struct {
	Origin    string `json:"origin"`
	ScooterID string `json:"scooter_id"`
	Payload   []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		publish: make(chan envelope, publishBuffer),
		ready:   make(chan struct{}),
		cancel:  cancel,
	}

	if redisClient == nil {
		close(h.ready)
		return h
	}

	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	h.wg.Add(2)
	go h.subscribeRedis(ctx, pubsub)
	go h.publishRedis(ctx)
	return h
}

// Ready is closed once the Redis subscription is confirmed, or at once
// when the hub runs without Redis.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

func (h *Hub) Register(scooterID string) *Client {
	client := &Client{
		ScooterID: scooterID,
		Send:      make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[scooterID] == nil {
		h.clients[scooterID] = map[*Client]struct{}{}
	}
	h.clients[scooterID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	scooterClients, ok := h.clients[client.ScooterID]
	if !ok {
		return
	}
	if _, ok := scooterClients[client]; !ok {
		return
	}
	delete(scooterClients, client)
	if len(scooterClients) == 0 {
		delete(h.clients, client.ScooterID)
	}
	close(client.Send)
}

// Broadcast delivers payload to local clients of scooterID and queues it for
// other instances. It never blocks: slow clients and a full publish queue
// drop messages.
func (h *Hub) Broadcast(scooterID string, payload []byte) {
	h.deliver(scooterID, payload)

	if h.redis == nil {
		return
	}
	select {
	case h.publish <- envelope{Origin: h.id, ScooterID: scooterID, Payload: payload}:
	default:
		log.Printf("stream publish queue full, dropping change for scooter %s", scooterID)
	}
}

// Close stops the Redis goroutines. Local delivery keeps working.
func (h *Hub) Close() {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
	})
}

func (h *Hub) deliver(scooterID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[scooterID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) publishRedis(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.publish:
			body, err := json.Marshal(env)
			if err != nil {
				log.Printf("stream encode error: %v", err)
				continue
			}
			if err := h.redis.Publish(ctx, redisChannel(env.ScooterID), body).Err(); err != nil {
				log.Printf("redis publish error: %v", err)
			}
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer h.wg.Done()
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error: %v", err)
		close(h.ready)
		return
	}
	close(h.ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("redis message decode error: %v", err)
				continue
			}
			if env.Origin == h.id {
				continue
			}
			scooterID := scooterIDFromChannel(msg.Channel)
			if scooterID == "" {
				continue
			}
			h.deliver(scooterID, env.Payload)
		}
	}
}

func redisChannel(scooterID string) string {
	return channelPrefix + scooterID + channelSuffix
}

// scooterIDFromChannel parses ride:{scooter}:changes.
func scooterIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
