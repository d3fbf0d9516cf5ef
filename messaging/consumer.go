package messaging

import (
	"log"
)

// InboundHandler is called for each decoded inbound message.
type InboundHandler interface {
	HandleMoveRequest(env *Envelope, req MoveRequest)
	HandleGamePause(env *Envelope, req GamePause)
	HandleGameUnpause(env *Envelope)
}

// Subscriber is the part of Client the consumer needs.
type Subscriber interface {
	Subscribe(topic string, handler MessageHandler) error
}

// Consumer subscribes to the game topic and routes messages to the handler.
type Consumer struct {
	client  Subscriber
	topic   string
	handler InboundHandler
}

func NewConsumer(client Subscriber, topic string, handler InboundHandler) *Consumer {
	return &Consumer{
		client:  client,
		topic:   topic,
		handler: handler,
	}
}

func (c *Consumer) Start() error {
	return c.client.Subscribe(c.topic, c.handleMessage)
}

func (c *Consumer) handleMessage(_ string, payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		log.Printf("consumer: decode error: %v", err)
		return
	}

	switch p := env.Payload.(type) {
	case MoveRequest:
		c.handler.HandleMoveRequest(env, p)
	case GamePause:
		c.handler.HandleGamePause(env, p)
	case GameUnpause:
		c.handler.HandleGameUnpause(env)
	default:
		log.Printf("consumer: unhandled payload type: %T", p)
	}
}
