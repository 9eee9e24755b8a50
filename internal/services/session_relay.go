package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"studyforge/internal/models"
)

const sessionChannelPattern = "session:*:events"

func sessionChannel(userID string) string {
	return "session:" + userID + ":events"
}

// relayMessage is a session event sent via pub/sub
type relayMessage struct {
	UserID     string              `json:"userId"`
	InstanceID string              `json:"instanceId"` // Source instance ID
	Event      models.SessionEvent `json:"event"`
}

// SessionRelay forwards session events between server instances over Redis
// pub/sub, so a sign-out on one instance reaches streams held by another
type SessionRelay struct {
	redis      *RedisService
	bus        *SessionEventBus
	pubsub     *redis.PubSub
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewSessionRelay creates a relay and attaches it to bus
func NewSessionRelay(redisService *RedisService, bus *SessionEventBus, instanceID string) *SessionRelay {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SessionRelay{
		redis:      redisService,
		bus:        bus,
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
	bus.SetRelay(r.publish)
	return r
}

// Start begins listening for events published by other instances
func (r *SessionRelay) Start() error {
	r.pubsub = r.redis.Client().PSubscribe(r.ctx, sessionChannelPattern)

	// Wait for subscription confirmation
	if _, err := r.pubsub.Receive(r.ctx); err != nil {
		return err
	}

	r.wg.Add(1)
	go r.processMessages()

	log.Printf("✅ [SESSION-RELAY] Started listening for session events (instance: %s)", r.instanceID)
	return nil
}

func (r *SessionRelay) processMessages() {
	defer r.wg.Done()
	ch := r.pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleMessage(msg)
		}
	}
}

// handleMessage delivers a remote event to local subscribers
func (r *SessionRelay) handleMessage(msg *redis.Message) {
	var message relayMessage
	if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
		log.Printf("⚠️ [SESSION-RELAY] Failed to unmarshal message: %v", err)
		return
	}

	// Skip messages from this instance (avoid loops)
	if message.InstanceID == r.instanceID {
		return
	}
	if sessionChannel(message.UserID) != msg.Channel || strings.TrimSpace(message.UserID) == "" {
		log.Printf("⚠️ [SESSION-RELAY] Dropping message with mismatched channel %s", msg.Channel)
		return
	}

	r.bus.deliver(message.UserID, message.Event)
}

// publish sends a locally published event to the other instances
func (r *SessionRelay) publish(userID string, event models.SessionEvent) {
	data, err := json.Marshal(relayMessage{
		UserID:     userID,
		InstanceID: r.instanceID,
		Event:      event,
	})
	if err != nil {
		log.Printf("⚠️ [SESSION-RELAY] Failed to marshal event: %v", err)
		return
	}

	if err := r.redis.Client().Publish(r.ctx, sessionChannel(userID), data).Err(); err != nil {
		log.Printf("⚠️ [SESSION-RELAY] Failed to publish %s for user %s: %v", event.Type, userID, err)
	}
}

// Stop stops listening and detaches the relay from the bus
func (r *SessionRelay) Stop() error {
	r.bus.SetRelay(nil)
	r.cancel()

	var err error
	if r.pubsub != nil {
		err = r.pubsub.Close()
	}
	r.wg.Wait()
	return err
}
