// Package syncremote delivers queued sync events to the central collector
// over HTTP. Delivery is best effort and asynchronous: events stay in the
// local queue until the collector acknowledges them, and failures surface
// through the queue's failed state rather than through the mutation that
// created the event.
package syncremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vivarium/internal/core"
	"vivarium/pkg/domain"
)

// Config controls the dispatcher. Enabled false turns the dispatcher into a
// no-op; the local queue still works and manual flushes still succeed.
type Config struct {
	Enabled  bool
	Endpoint string
	Timeout  time.Duration
}

// ConfigFromEnv reads the dispatcher configuration.
//
//	VIVARIUM_SYNC_ENABLED: true|1 enables remote delivery (default disabled)
//	VIVARIUM_SYNC_ENDPOINT: collector URL (default http://localhost:9800/events)
func ConfigFromEnv() Config {
	enabled := strings.EqualFold(os.Getenv("VIVARIUM_SYNC_ENABLED"), "true") || os.Getenv("VIVARIUM_SYNC_ENABLED") == "1"
	endpoint := os.Getenv("VIVARIUM_SYNC_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:9800/events"
	}
	return Config{Enabled: enabled, Endpoint: endpoint, Timeout: 10 * time.Second}
}

// Dispatcher watches the snapshot stream and posts pending sync events to
// the collector, acknowledging each through the service so the outcome lands
// in the queue and the audit log.
type Dispatcher struct {
	cfg    Config
	svc    *core.Service
	client *http.Client
	log    zerolog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// New builds a dispatcher over the service.
func New(cfg Config, svc *core.Service, log zerolog.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:      cfg,
		svc:      svc,
		client:   &http.Client{Timeout: timeout},
		log:      log,
		inflight: map[string]bool{},
	}
}

// Run subscribes to the snapshot stream and dispatches until the context is
// cancelled. Returns immediately when delivery is disabled.
func (d *Dispatcher) Run(ctx context.Context) {
	if !d.cfg.Enabled {
		d.log.Info().Msg("remote sync disabled")
		return
	}
	revs, cancel := d.svc.Store().Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case rev, ok := <-revs:
			if !ok {
				return
			}
			d.dispatchPending(ctx, rev.Snapshot)
		}
	}
}

// dispatchPending posts every pending event not already in flight. Each
// delivery runs on its own goroutine so one slow collector round trip does
// not stall the rest of the queue.
func (d *Dispatcher) dispatchPending(ctx context.Context, snap domain.Snapshot) {
	for _, event := range snap.SyncEvents {
		if event.Status != domain.SyncPending {
			continue
		}
		d.mu.Lock()
		if d.inflight[event.ID] {
			d.mu.Unlock()
			continue
		}
		d.inflight[event.ID] = true
		d.mu.Unlock()

		go func(ev domain.SyncEvent) {
			defer func() {
				d.mu.Lock()
				delete(d.inflight, ev.ID)
				d.mu.Unlock()
			}()
			if err := d.deliver(ctx, ev); err != nil {
				d.log.Warn().Err(err).Str("event", ev.ID).Msg("sync delivery failed")
				d.svc.MarkSyncFailed(ev.ID)
				return
			}
			d.svc.MarkSyncDelivered(ev.ID)
		}(event)
	}
}

// wireEvent is the collector payload for one queued event.
type wireEvent struct {
	ID             string    `json:"id"`
	EventType      string    `json:"event_type"`
	PayloadSummary string    `json:"payload_summary"`
	RetryCount     int       `json:"retry_count"`
	CreatedAt      time.Time `json:"created_at"`
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.SyncEvent) error {
	body, err := json.Marshal(wireEvent{
		ID:             ev.ID,
		EventType:      ev.EventType,
		PayloadSummary: ev.PayloadSummary,
		RetryCount:     ev.RetryCount,
		CreatedAt:      ev.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector returned %d", resp.StatusCode)
	}
	return nil
}
