package alerting_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ekemper/leadgen/alerting"
)

type countingAlerter struct {
	mu    sync.Mutex
	count int
}

func (c *countingAlerter) Notify(ctx context.Context, event alerting.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

func TestMultiFansOut(t *testing.T) {
	a := &countingAlerter{}
	b := &countingAlerter{}
	m := alerting.Multi{a, b}

	m.Notify(context.Background(), alerting.Event{Kind: alerting.KindBreakerOpened, At: time.Now()})

	assert.Equal(t, 1, a.count)
	assert.Equal(t, 1, b.count)
}

func TestWebhookAlerterThrottles(t *testing.T) {
	var mu sync.Mutex
	delivered := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}))
	defer srv.Close()

	// 6 alerts/minute with burst 1: only the first of a rapid burst lands.
	a := alerting.NewWebhookAlerter(srv.URL, 6, zap.NewNop().Sugar())
	for i := 0; i < 5; i++ {
		a.Notify(context.Background(), alerting.Event{Kind: alerting.KindBreakerOpened, At: time.Now()})
	}

	// Delivery is async; give the goroutine a moment.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := delivered
		mu.Unlock()
		if n >= 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
}
