package messaging

import (
	"log"
	"sync"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/store"
)

// Publisher is the part of Client the drainer needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// maxOutboxRetries is how many failed publishes a message gets before the
// drainer leaves it alone.
const maxOutboxRetries = 5

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       *store.DB
	client   Publisher
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewOutboxDrainer(db *store.DB, client Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxDrainer{
		db:       db,
		client:   client,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go d.run()
}

func (d *OutboxDrainer) Stop() {
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
	d.wg.Wait()
}

func (d *OutboxDrainer) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.Drain()
		}
	}
}

// Drain publishes up to one batch of pending messages and returns how many
// were sent.
func (d *OutboxDrainer) Drain() int {
	if !d.client.IsConnected() {
		return 0
	}

	msgs, err := d.db.ListPendingOutbox(50, maxOutboxRetries)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		if err := d.client.Publish(msg.Topic, msg.Payload); err != nil {
			log.Printf("outbox: publish %s %s to %s failed: %v", msg.MsgType, msg.MsgID, msg.Topic, err)
			if ferr := d.db.FailOutbox(msg.ID, err); ferr != nil {
				log.Printf("outbox: record failure for msg %d: %v", msg.ID, ferr)
			}
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			log.Printf("outbox: ack msg %d: %v", msg.ID, err)
			continue
		}
		sent++
	}
	return sent
}
