/*
scheduler.go - Overdue invoice monitor

PURPOSE:
  Periodically scans invoices and logs the ones that have crossed their
  grace window unpaid, with the surcharged balance now owed. The surcharge
  itself is derived at read time, so the monitor never writes anything; it
  exists to surface overdue accounts in the logs and to feed alerting.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - An invoice is reported once per crossing: the monitor remembers which
    ids it has already flagged and drops them again when they are settled
  - Stop() waits for the in-flight scan to finish

CONFIGURATION:
  - CheckInterval: How often to scan (default: 1 hour)
  - Enabled: Whether the monitor is active (default: true)

USAGE:
  monitor := NewOverdueMonitor(invoices, logger)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - invoice/balance.go: Grace window and surcharge derivation
  - cmd/server/main.go: Startup wiring
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/invoice"
)

// OverdueMonitor logs invoices that cross their grace window unpaid.
type OverdueMonitor struct {
	Invoices      invoice.Store
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	flagged map[invoice.ID]bool
	now     func() time.Time
}

// NewOverdueMonitor creates a monitor over the invoice store.
func NewOverdueMonitor(invoices invoice.Store, log *zap.Logger) *OverdueMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &OverdueMonitor{
		Invoices:      invoices,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
		flagged:       make(map[invoice.ID]bool),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the background scan loop.
func (m *OverdueMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.Log.Info("overdue monitor disabled, not starting")
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.wg.Add(1)
	go m.run()

	m.Log.Info("overdue monitor started", zap.Duration("check_interval", m.CheckInterval))
}

// Stop halts the loop and waits for any in-flight scan.
func (m *OverdueMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.Log.Info("overdue monitor stopped")
	}
}

func (m *OverdueMonitor) run() {
	defer m.wg.Done()

	// Scan immediately on start
	m.Scan(context.Background())

	for {
		select {
		case <-m.ticker.C:
			m.Scan(context.Background())
		case <-m.stop:
			return
		}
	}
}

// Scan flags invoices newly past their grace window. Exposed for tests and
// admin triggering.
func (m *OverdueMonitor) Scan(ctx context.Context) {
	asOf := m.now()

	invoices, err := m.Invoices.ListInvoices(ctx)
	if err != nil {
		m.Log.Error("overdue scan failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	newlyOverdue := 0
	for i := range invoices {
		inv := &invoices[i]
		balance := invoice.Balance(inv, asOf)

		if inv.Status == invoice.StatusPaid || !balance.IsPositive() {
			delete(m.flagged, inv.ID)
			continue
		}
		graceEnd := inv.DueDate.AddDate(0, 0, invoice.GraceDays)
		if !asOf.After(graceEnd) {
			continue
		}
		if m.flagged[inv.ID] {
			continue
		}

		m.flagged[inv.ID] = true
		newlyOverdue++
		m.Log.Warn("invoice past grace window",
			zap.String("invoice_id", string(inv.ID)),
			zap.String("number", inv.Number),
			zap.String("customer", inv.Customer),
			zap.String("due_date", inv.DueDate.Format("2006-01-02")),
			zap.String("balance", balance.String()))
	}

	if newlyOverdue > 0 {
		m.Log.Info("overdue scan completed", zap.Int("newly_overdue", newlyOverdue))
	}
}
