package sfu

import (
	"encoding/json"
	"testing"
)

func TestLoopbackProduceConsume(t *testing.T) {
	t.Parallel()

	engine := NewLoopbackEngine()
	worker, err := engine.NewWorker(Settings{MinPort: 40000, MaxPort: 49999})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}
	router, err := worker.CreateRouter()
	if err != nil {
		t.Fatalf("CreateRouter() error = %v", err)
	}

	send, err := router.CreateTransport()
	if err != nil {
		t.Fatalf("CreateTransport() error = %v", err)
	}
	recv, err := router.CreateTransport()
	if err != nil {
		t.Fatalf("CreateTransport() error = %v", err)
	}
	if send.ID() == recv.ID() {
		t.Fatalf("transports share id %q", send.ID())
	}

	if err := send.Connect(json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	producer, err := send.Produce("audio", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Produce() error = %v", err)
	}
	if !router.CanConsume(producer.ID(), nil) {
		t.Fatalf("CanConsume(%q) = false, want true", producer.ID())
	}

	consumer, err := recv.Consume(producer.ID(), nil)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if consumer.ProducerID() != producer.ID() {
		t.Errorf("consumer.ProducerID() = %q, want %q", consumer.ProducerID(), producer.ID())
	}
	if consumer.Kind() != "audio" {
		t.Errorf("consumer.Kind() = %q, want audio", consumer.Kind())
	}
	if err := consumer.Resume(); err != nil {
		t.Errorf("Resume() error = %v", err)
	}

	producer.Close()
	if router.CanConsume(producer.ID(), nil) {
		t.Errorf("CanConsume after close = true, want false")
	}
	if _, err := recv.Consume(producer.ID(), nil); err != ErrNotFound {
		t.Errorf("Consume after close error = %v, want ErrNotFound", err)
	}
}

func TestLoopbackClosedObjects(t *testing.T) {
	t.Parallel()

	engine := NewLoopbackEngine()
	worker, err := engine.NewWorker(Settings{})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	router, err := worker.CreateRouter()
	if err != nil {
		t.Fatalf("CreateRouter() error = %v", err)
	}
	worker.Close()
	if _, err := worker.CreateRouter(); err != ErrWorkerClosed {
		t.Errorf("CreateRouter on closed worker error = %v, want ErrWorkerClosed", err)
	}

	router.Close()
	if _, err := router.CreateTransport(); err != ErrRouterClosed {
		t.Errorf("CreateTransport on closed router error = %v, want ErrRouterClosed", err)
	}
}

func TestLoopbackWorkerDied(t *testing.T) {
	t.Parallel()

	engine := NewLoopbackEngine()
	worker, err := engine.NewWorker(Settings{})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	select {
	case <-worker.Died():
		t.Fatal("Died() fired before Kill")
	default:
	}

	worker.(*loopbackWorker).Kill()
	select {
	case <-worker.Died():
	default:
		t.Fatal("Died() did not fire after Kill")
	}
}
