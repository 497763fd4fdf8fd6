package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voxelcraft.ai/blockphys/internal/sim/blockphys"
	"voxelcraft.ai/blockphys/internal/sim/catalogs"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
)

// RemoteConfig configures an HTTP ingest endpoint that receives batched
// tick and audit events as JSON.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	WorldID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds how many undelivered events survive failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	auditMu       sync.Mutex
	lastAuditTick uint64
	auditSeq      int

	dropTick  atomic.Uint64
	dropAudit atomic.Uint64
	failTotal atomic.Uint64
	lostTotal atomic.Uint64
}

type remoteEvent struct {
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

type remoteAuditPayload struct {
	Seq int                  `json:"seq"`
	Raw blockphys.AuditEntry `json:"raw"`
}

type remoteCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.WorldID = strings.TrimSpace(cfg.WorldID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty remote ingest endpoint")
	}
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("empty world id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained < cfg.BatchSize {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}

	d := &RemoteIndex{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan remoteEvent, 32768),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *RemoteIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteIndex) WriteTick(entry blockphys.TickLogEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	if !d.enqueue(remoteEvent{Kind: "tick", WorldID: d.cfg.WorldID, Payload: entry}) {
		d.dropTick.Add(1)
	}
	return nil
}

func (d *RemoteIndex) WriteAudit(entry blockphys.AuditEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	p := remoteAuditPayload{Seq: d.nextAuditSeq(entry.Tick), Raw: entry}
	if !d.enqueue(remoteEvent{Kind: "audit", WorldID: d.cfg.WorldID, Payload: p}) {
		d.dropAudit.Add(1)
	}
	return nil
}

func (d *RemoteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if d == nil || d.closed.Load() || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range catalogRows(cats, tune) {
		d.enqueue(remoteEvent{Kind: "catalog", WorldID: d.cfg.WorldID, Payload: remoteCatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.data),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (d *RemoteIndex) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(d.ch),
		QueueCapacity:  cap(d.ch),
		DropTickTotal:  d.dropTick.Load(),
		DropAuditTotal: d.dropAudit.Load(),
		FlushFailTotal: d.failTotal.Load(),
	}
}

// LostTotal counts retained events discarded after repeated flush failures.
func (d *RemoteIndex) LostTotal() uint64 { return d.lostTotal.Load() }

func (d *RemoteIndex) nextAuditSeq(tick uint64) int {
	d.auditMu.Lock()
	defer d.auditMu.Unlock()
	if tick != d.lastAuditTick {
		d.lastAuditTick = tick
		d.auditSeq = 0
	}
	d.auditSeq++
	return d.auditSeq
}

func (d *RemoteIndex) enqueue(ev remoteEvent) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	select {
	case d.ch <- ev:
		return true
	default:
		d.printf("remote index queue full; drop kind=%s world=%s", ev.Kind, ev.WorldID)
		return false
	}
}

func (d *RemoteIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.failTotal.Add(1)
			d.printf("remote index flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next flush, minus the oldest overflow.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.lostTotal.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *RemoteIndex) sendBatch(events []remoteEvent) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-bp-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *RemoteIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
