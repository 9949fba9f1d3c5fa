package telemetry

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	bufferSize     = 64
	retryInterval  = 5 * time.Second
	publishTimeout = 5 * time.Second
)

var (
	publishedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_events_published",
		Help: "count of events delivered to the mqtt broker",
	})
	droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_events_dropped",
		Help: "count of events dropped because the buffer was full",
	})
)

// MQTT publishes events to a broker.  Publish only queues the event; a background goroutine sends
// it once the broker is reachable, so a broker outage never stalls the clock.
type MQTT struct {
	connected  func() bool
	send       func(payload []byte) error
	disconnect func()

	mu     sync.Mutex
	buf    *ringBuffer
	closed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewMQTT starts connecting to broker in the background and returns a publisher for topic.
func NewMQTT(broker, clientID, topic string) *MQTT {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})
	client := paho.NewClient(opts)
	client.Connect()

	return newMQTT(client.IsConnectionOpen, func(payload []byte) error {
		// QoS 1; an alarm event that is lost is an alarm event we can't graph.
		token := client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			return errors.New("publish timeout")
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		return nil
	}, func() { client.Disconnect(1000) }, retryInterval)
}

func newMQTT(connected func() bool, send func([]byte) error, disconnect func(), retry time.Duration) *MQTT {
	p := &MQTT{
		connected:  connected,
		send:       send,
		disconnect: disconnect,
		buf:        newRingBuffer(bufferSize),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run(retry)
	return p
}

// Publish queues an event for delivery.
func (p *MQTT) Publish(e Event) error {
	payload, err := FormatPayload(e)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("publisher closed")
	}
	ok := p.buf.push(payload)
	p.mu.Unlock()
	if !ok {
		droppedCounter.Inc()
		return errors.New("event buffer full")
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of events waiting to be sent.
func (p *MQTT) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

func (p *MQTT) run(retry time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(retry)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			p.flush()
			return
		case <-p.wake:
		case <-t.C:
		}
		p.flush()
	}
}

// flush sends buffered events, oldest first, until the buffer is empty or a send fails.
func (p *MQTT) flush() {
	for p.connected() {
		p.mu.Lock()
		payload, ok := p.buf.peek()
		p.mu.Unlock()
		if !ok {
			return
		}
		if err := p.send(payload); err != nil {
			log.Printf("mqtt: %v; will retry", err)
			return
		}
		publishedCounter.Inc()
		p.mu.Lock()
		p.buf.pop()
		p.mu.Unlock()
	}
}

// Close makes one last attempt to send anything buffered and disconnects.
func (p *MQTT) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.done)
	p.wg.Wait()
	p.disconnect()
	return nil
}
