package queue

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentBroker accepts connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishGivesUpOnSilentBroker(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	p := NewPublisher(silentBroker(t), log)
	p.dialTimeout = 200 * time.Millisecond

	start := time.Now()
	err := p.PublishAlert(context.Background(), OpsAlert{Kind: "test", Message: "hello"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, "rabbitmq: dial failed", hook.LastEntry().Message)
}

func TestPublishHonoursContextDeadline(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	p := NewPublisher(silentBroker(t), log)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.PublishReservationEvent(ctx, ReservationEvent{Type: QueueReservationConfirmed, ReservationID: "r1"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "the default dial timeout is cut short by ctx")
}
