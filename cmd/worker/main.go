package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/support-chat/internal/chat"
	"github.com/suPer8Hu/support-chat/internal/config"
	"github.com/suPer8Hu/support-chat/internal/db"
	"github.com/suPer8Hu/support-chat/internal/responder"
	"github.com/suPer8Hu/support-chat/internal/store/rabbitmq"
)

var errBadEvent = errors.New("bad chat event")

// decodeEvent rejects anything the publisher would never have sent.
func decodeEvent(body []byte) (rabbitmq.ChatEvent, error) {
	var ev rabbitmq.ChatEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", errBadEvent, err)
	}
	switch ev.Type {
	case rabbitmq.EventConversationOpened, rabbitmq.EventConversationAssigned, rabbitmq.EventConversationEnded:
	default:
		return ev, fmt.Errorf("%w: unknown type %q", errBadEvent, ev.Type)
	}
	if ev.ConversationID == "" {
		return ev, fmt.Errorf("%w: missing conversation_id", errBadEvent)
	}
	return ev, nil
}

// notifyLine renders the notification for ev against the conversation's
// current state.
func notifyLine(ev rabbitmq.ChatEvent, conv *chat.Conversation) string {
	switch ev.Type {
	case rabbitmq.EventConversationOpened:
		order := "-"
		if conv.OrderContextID != nil {
			order = *conv.OrderContextID
		}
		return fmt.Sprintf("notify admins: customer=%d opened conversation=%s order=%s", conv.CustomerID, conv.ConversationID, order)
	case rabbitmq.EventConversationAssigned:
		agent := uint64(0)
		if conv.AgentID != nil {
			agent = *conv.AgentID
		}
		return fmt.Sprintf("notify customer=%d: agent=%d joined conversation=%s", conv.CustomerID, agent, conv.ConversationID)
	default:
		endedBy := ev.EndedBy
		if conv.EndedBy != nil {
			endedBy = string(*conv.EndedBy)
		}
		return fmt.Sprintf("notify customer=%d: conversation=%s ended by %s", conv.CustomerID, conv.ConversationID, endedBy)
	}
}

func handleEvent(ctx context.Context, svc *chat.Service, ev rabbitmq.ChatEvent) error {
	conv, err := svc.GetConversation(ctx, ev.ConversationID)
	if err != nil {
		return err
	}
	log.Printf("%s lag=%s", notifyLine(ev, conv), time.Since(ev.At).Truncate(time.Millisecond))
	return nil
}

const eventTimeout = 10 * time.Second

// process settles one delivery. The handler runs on a context detached from
// shutdown, so deliveries already buffered when SIGTERM arrives still get
// handled. A failure after shutdown began is requeued, not dead-lettered.
func process(ctx context.Context, workerID int, d amqp.Delivery, handle func(context.Context, rabbitmq.ChatEvent) error) {
	ev, err := decodeEvent(d.Body)
	if err != nil {
		log.Printf("worker=%d bad message: %v", workerID, err)
		_ = d.Nack(false, false)
		return
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	start := time.Now()
	if err := handle(hctx, ev); err != nil {
		requeue := ctx.Err() != nil
		log.Printf("worker=%d event %s conversation=%s failed cost=%s requeue=%t err=%v",
			workerID, ev.Type, ev.ConversationID, time.Since(start), requeue, err)
		_ = d.Nack(false, requeue)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Printf("worker=%d ack failed conversation=%s err=%v", workerID, ev.ConversationID, err)
	}
}

func main() {
	cfg := config.Load()
	if cfg.RabbitURL == "" {
		log.Fatalf("RABBIT_URL is required for the worker")
	}

	gdb := db.Connect(cfg.DBDSN, chat.Models()...)
	svc := chat.NewService(chat.NewConversationStore(gdb), chat.NewMessageStore(gdb), responder.Default())

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	// prefetch matches the pool size
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	handle := func(ctx context.Context, ev rabbitmq.ChatEvent) error {
		return handleEvent(ctx, svc, ev)
	}

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				process(ctx, workerID, d, handle)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}
