package bluetooth_test

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bluetooth "tinygo.org/x/blehost"
	"tinygo.org/x/blehost/hcisim"
)

// recorder keeps every GAP event it receives.
type recorder struct {
	bluetooth.NoopEventHandler

	starts         []bluetooth.AdvertisingStartEvent
	ends           []bluetooth.AdvertisingEndEvent
	scanRequests   []bluetooth.ScanRequestReceivedEvent
	reports        []bluetooth.AdvertisingReportEvent
	scanTimeouts   int
	connections    []bluetooth.ConnectionCompleteEvent
	syncs          []bluetooth.PeriodicSyncEstablishedEvent
	periodic       []bluetooth.PeriodicAdvertisingReportEvent
	syncLosses     []bluetooth.PeriodicSyncLostEvent
	phyUpdates     []bluetooth.PhyUpdateCompleteEvent
	privacyEnabled int
}

func (r *recorder) OnAdvertisingStart(ev bluetooth.AdvertisingStartEvent) {
	r.starts = append(r.starts, ev)
}

func (r *recorder) OnAdvertisingEnd(ev bluetooth.AdvertisingEndEvent) {
	r.ends = append(r.ends, ev)
}

func (r *recorder) OnScanRequestReceived(ev bluetooth.ScanRequestReceivedEvent) {
	r.scanRequests = append(r.scanRequests, ev)
}

func (r *recorder) OnAdvertisingReport(ev bluetooth.AdvertisingReportEvent) {
	r.reports = append(r.reports, ev)
}

func (r *recorder) OnScanTimeout(bluetooth.ScanTimeoutEvent) {
	r.scanTimeouts++
}

func (r *recorder) OnConnectionComplete(ev bluetooth.ConnectionCompleteEvent) {
	r.connections = append(r.connections, ev)
}

func (r *recorder) OnPeriodicAdvertisingSyncEstablished(ev bluetooth.PeriodicSyncEstablishedEvent) {
	r.syncs = append(r.syncs, ev)
}

func (r *recorder) OnPeriodicAdvertisingReport(ev bluetooth.PeriodicAdvertisingReportEvent) {
	r.periodic = append(r.periodic, ev)
}

func (r *recorder) OnPeriodicAdvertisingSyncLoss(ev bluetooth.PeriodicSyncLostEvent) {
	r.syncLosses = append(r.syncLosses, ev)
}

func (r *recorder) OnPhyUpdateComplete(ev bluetooth.PhyUpdateCompleteEvent) {
	r.phyUpdates = append(r.phyUpdates, ev)
}

func (r *recorder) OnPrivacyEnabled() {
	r.privacyEnabled++
}

// testHost is an enabled adapter on a simulated controller.
type testHost struct {
	adapter *bluetooth.Adapter
	gap     *bluetooth.Gap
	privacy *bluetooth.PrivateAddressController
	sim     *hcisim.Controller
	ticker  *bluetooth.ManualTicker
	events  *recorder
	logs    *logtest.Hook
}

type hostOptions struct {
	sim    []hcisim.Option
	config *bluetooth.Config
	seed   int64
}

func newTestHost(t *testing.T, opts hostOptions) *testHost {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	if opts.config == nil {
		opts.config = bluetooth.DefaultConfig()
	}
	if opts.seed == 0 {
		opts.seed = 1
	}

	h := &testHost{
		sim:    hcisim.New(opts.sim...),
		ticker: bluetooth.NewManualTicker(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		events: &recorder{},
		logs:   hook,
	}
	h.adapter = bluetooth.NewAdapter(h.sim,
		bluetooth.WithLogger(log),
		bluetooth.WithConfig(opts.config),
		bluetooth.WithTicker(h.ticker),
		bluetooth.WithRandom(rand.New(rand.NewSource(opts.seed))),
		bluetooth.WithEventHandler(h.events),
	)
	require.NoError(t, h.adapter.Enable())
	h.gap = h.adapter.Gap()
	h.privacy = h.adapter.Privacy()
	t.Cleanup(func() {
		_ = h.adapter.Close()
	})
	return h
}

func (h *testHost) process() int {
	return h.adapter.ProcessEvents()
}

// advance moves the clock and handles the resulting events.
func (h *testHost) advance(d time.Duration) {
	h.ticker.Advance(d)
	h.process()
}

// loggedWarning reports whether the warning msg was logged.
func (h *testHost) loggedWarning(msg string) bool {
	for _, e := range h.logs.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == msg {
			return true
		}
	}
	return false
}

func TestAdapterLifecycle(t *testing.T) {
	sim := hcisim.New()
	log, _ := logtest.NewNullLogger()
	a := bluetooth.NewAdapter(sim, bluetooth.WithLogger(log))

	assert.Nil(t, a.Gap())
	assert.Nil(t, a.Privacy())
	assert.ErrorIs(t, a.PostControllerEvent(bluetooth.PeriodicSyncLostEvent{}), bluetooth.ErrNotEnabled)
	assert.Equal(t, 0, a.ProcessEvents())
	assert.ErrorIs(t, a.Close(), bluetooth.ErrNotEnabled)
	assert.ErrorIs(t, a.Run(context.Background()), bluetooth.ErrNotEnabled)

	require.NoError(t, a.Enable())
	assert.ErrorIs(t, a.Enable(), bluetooth.ErrInvalidState)
	require.NotNil(t, a.Gap())
	require.NotNil(t, a.Privacy())
	assert.Equal(t, bluetooth.DefaultConfig(), a.Config())

	require.NoError(t, a.Close())
	assert.Equal(t, []string{"Init", "Shutdown"}, sim.CommandNames())
}

func TestAdapterLogFile(t *testing.T) {
	cfg := bluetooth.DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "ble.log")
	a := bluetooth.NewAdapter(hcisim.New(), bluetooth.WithConfig(cfg))
	require.NoError(t, a.Enable())
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "adapter enabled")
	assert.Contains(t, string(data), "adapter closed")
}

func TestAdapterInvalidConfig(t *testing.T) {
	cfg := bluetooth.DefaultConfig()
	cfg.EventQueueSize = 0
	log, _ := logtest.NewNullLogger()
	a := bluetooth.NewAdapter(hcisim.New(), bluetooth.WithLogger(log), bluetooth.WithConfig(cfg))
	assert.ErrorIs(t, a.Enable(), bluetooth.ErrInvalidParam)
}

func TestAdapterNilController(t *testing.T) {
	assert.Panics(t, func() { bluetooth.NewAdapter(nil) })
}

func TestAdapterEventQueueFull(t *testing.T) {
	cfg := bluetooth.DefaultConfig()
	cfg.EventQueueSize = 2
	h := newTestHost(t, hostOptions{config: cfg})

	for i := 0; i < 2; i++ {
		require.NoError(t, h.sim.LoseSync(uint16(i)))
	}
	assert.ErrorIs(t, h.sim.LoseSync(2), bluetooth.ErrResourceExhausted)
	assert.True(t, h.loggedWarning("dropping controller event"))

	assert.Equal(t, 2, h.process())
	assert.Len(t, h.events.syncLosses, 2)
}

func TestAdapterRun(t *testing.T) {
	sim := hcisim.New()
	log, _ := logtest.NewNullLogger()
	events := make(chan bluetooth.PhyUpdateCompleteEvent, 1)
	a := bluetooth.NewAdapter(sim, bluetooth.WithLogger(log), bluetooth.WithEventHandler(phyHandler{events: events}))
	require.NoError(t, a.Enable())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	// The simulator answers right away; only the pump goroutine touches the
	// GAP, so the request is sent through the controller directly.
	require.NoError(t, sim.SetPhy(1, bluetooth.PHY2M, bluetooth.PHY2M))
	select {
	case ev := <-events:
		assert.Equal(t, bluetooth.ConnectionHandle(1), ev.Handle)
		assert.Equal(t, bluetooth.PHY2M, ev.TxPHY)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

type phyHandler struct {
	bluetooth.NoopEventHandler
	events chan bluetooth.PhyUpdateCompleteEvent
}

func (h phyHandler) OnPhyUpdateComplete(ev bluetooth.PhyUpdateCompleteEvent) {
	h.events <- ev
}
