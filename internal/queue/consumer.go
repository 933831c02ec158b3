package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobProcessor finalizes one confirmation job.  A nil return means the
// job reached a terminal decision (confirmed, rejected-and-compensated,
// or skipped as already terminal) and must be acknowledged.  A non-nil
// return means an infrastructure failure; the delivery is requeued and
// the processor must tolerate re-running the same job.
type JobProcessor interface {
	ProcessConfirmJob(ctx context.Context, job ConfirmReservationJob) error
}

// StartConfirmConsumer connects to RabbitMQ, declares the durable
// reservation.confirm queue and drains it with a pool of worker
// goroutines.  It runs a reconnect loop with exponential backoff and
// returns only when the context is cancelled.
func StartConfirmConsumer(ctx context.Context, url string, workers int, proc JobProcessor) {
	if workers < 1 {
		workers = 1
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("confirm-consumer: dial failed: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(ctx, conn, workers, proc); err != nil {
			log.Printf("confirm-consumer: consume loop ended: %v; reconnecting", err)
		}
		_ = conn.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, workers int, proc JobProcessor) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Prefetch a bit beyond the pool so workers never starve between acks.
	if err := ch.Qos(workers*2, 0, false); err != nil {
		log.Printf("confirm-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(ConfirmQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ConfirmQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	done := make(chan struct{})
	sem := make(chan struct{}, workers)
	go func() {
		defer close(done)
		for d := range msgs {
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handleDelivery(ctx, d, proc)
			}(d)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return errors.New("deliveries channel closed")
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, proc JobProcessor) {
	var job ConfirmReservationJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		// Poison message: reject without requeue to avoid a tight loop.
		log.Printf("confirm-consumer: undecodable job: %v", err)
		_ = d.Nack(false, false)
		return
	}
	if err := proc.ProcessConfirmJob(ctx, job); err != nil {
		log.Printf("confirm-consumer: reservation=%d transient failure: %v", job.ReservationID, err)
		// Brief pause before requeue keeps a dead database from spinning
		// the queue at full speed.
		time.Sleep(time.Second)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
