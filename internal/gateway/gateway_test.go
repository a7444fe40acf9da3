package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockConnector scripts one error (or success) per attempt and records calls.
type mockConnector struct {
	name    string
	symbols map[string]bool

	mu        sync.Mutex
	calls     int
	script    []error // nil entry = success; attempts past the script succeed
	delay     time.Duration
	onAttempt func(n int)

	cancelled []string
	cancelErr error
}

func (m *mockConnector) Name() string { return m.name }

func (m *mockConnector) SupportsSymbol(symbol string) bool { return m.symbols[symbol] }

func (m *mockConnector) PlaceOrder(ctx context.Context, order *domain.TradeOrder) (*domain.Fill, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	var err error
	if n <= len(m.script) {
		err = m.script[n-1]
	}
	m.mu.Unlock()

	if m.onAttempt != nil {
		m.onAttempt(n)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &domain.Fill{
		ExchangeOrderID: "ex-1",
		Price:           100,
		Quantity:        order.Quantity,
		Timestamp:       time.Now().UTC(),
	}, nil
}

func (m *mockConnector) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, exchangeOrderID)
	return m.cancelErr
}

func (m *mockConnector) GetBalance(ctx context.Context, asset string) (float64, error) {
	return 10000, nil
}

func (m *mockConnector) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestGateway(t *testing.T, conn *mockConnector, tweak func(*Config)) *Gateway {
	t.Helper()
	cfg := Config{
		Connectors:     []ports.ExchangeConnector{conn},
		AttemptTimeout: time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		Logger:         nopLogger{},
	}
	if tweak != nil {
		tweak(&cfg)
	}
	g, err := New(cfg)
	require.NoError(t, err)
	return g
}

func gatewayOrder(exchange string) *domain.TradeOrder {
	return &domain.TradeOrder{
		ID:       domain.NewOrderID(),
		Exchange: exchange,
		Symbol:   "ETHUSDT",
		Side:     domain.Buy,
		Kind:     domain.KindMarket,
		Quantity: 1,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Logger: nopLogger{}})
	assert.Error(t, err, "no connectors")

	_, err = New(Config{Connectors: []ports.ExchangeConnector{&mockConnector{name: "paper"}}})
	assert.Error(t, err, "no logger")
}

func TestGateway_SelectVenue(t *testing.T) {
	a := &mockConnector{name: "alpha", symbols: map[string]bool{"BTCUSDT": true}}
	b := &mockConnector{name: "beta", symbols: map[string]bool{"BTCUSDT": true, "ETHUSDT": true}}
	g := newTestGateway(t, a, func(cfg *Config) {
		cfg.Connectors = []ports.ExchangeConnector{a, b}
	})

	tests := []struct {
		name       string
		preference []string
		symbol     string
		wantVenue  string
		wantOK     bool
	}{
		{name: "first preference wins", preference: []string{"alpha", "beta"}, symbol: "BTCUSDT", wantVenue: "alpha", wantOK: true},
		{name: "skips venue without symbol", preference: []string{"alpha", "beta"}, symbol: "ETHUSDT", wantVenue: "beta", wantOK: true},
		{name: "no venue supports symbol", preference: []string{"alpha", "beta"}, symbol: "DOGEUSDT", wantOK: false},
		{name: "unknown venue name skipped", preference: []string{"gamma", "beta"}, symbol: "BTCUSDT", wantVenue: "beta", wantOK: true},
		{name: "empty preference", preference: nil, symbol: "BTCUSDT", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			venue, ok := g.SelectVenue(tt.preference, tt.symbol)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantVenue, venue)
		})
	}
}

func TestGateway_Submit_Success(t *testing.T) {
	conn := &mockConnector{name: "paper"}
	g := newTestGateway(t, conn, nil)

	sub, err := g.Submit(context.Background(), gatewayOrder("paper"))
	require.NoError(t, err)
	require.Len(t, sub.Attempts, 1)
	final := sub.Final()
	require.NotNil(t, final)
	assert.True(t, final.Success)
	assert.Equal(t, "ex-1", final.ExchangeOrderID)
	assert.Equal(t, domain.ErrClassNone, final.ErrClass)
}

func TestGateway_Submit_UnknownExchange(t *testing.T) {
	conn := &mockConnector{name: "paper"}
	g := newTestGateway(t, conn, nil)

	_, err := g.Submit(context.Background(), gatewayOrder("nonesuch"))
	assert.Error(t, err)
	assert.Equal(t, 0, conn.callCount())
}

func TestGateway_Submit_RetriesTransientThenSucceeds(t *testing.T) {
	conn := &mockConnector{
		name:   "paper",
		script: []error{ports.ErrExchangeUnavailable, ports.ErrRateLimited, nil},
	}
	g := newTestGateway(t, conn, nil)

	sub, err := g.Submit(context.Background(), gatewayOrder("paper"))
	require.NoError(t, err)
	assert.Equal(t, 3, conn.callCount())
	require.Len(t, sub.Attempts, 3)
	assert.Equal(t, domain.ErrClassTransient, sub.Attempts[0].ErrClass)
	assert.Equal(t, domain.ErrClassTransient, sub.Attempts[1].ErrClass)
	assert.True(t, sub.Final().Success)
}

func TestGateway_Submit_ExhaustsRetryBudget(t *testing.T) {
	conn := &mockConnector{
		name:   "paper",
		script: []error{ports.ErrExchangeUnavailable, ports.ErrExchangeUnavailable, ports.ErrExchangeUnavailable, ports.ErrExchangeUnavailable},
	}
	g := newTestGateway(t, conn, nil)

	order := gatewayOrder("paper")
	order.MaxRetries = 3
	sub, err := g.Submit(context.Background(), order)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
	assert.Equal(t, 3, conn.callCount(), "budget of 3 means exactly 3 attempts")
	require.Len(t, sub.Attempts, 3)
	for _, res := range sub.Attempts {
		assert.Equal(t, domain.ErrClassTransient, res.ErrClass)
		assert.False(t, res.Success)
	}
}

func TestGateway_Submit_PermanentFailureNoRetry(t *testing.T) {
	conn := &mockConnector{
		name:   "paper",
		script: []error{ports.ErrInsufficientFunds},
	}
	g := newTestGateway(t, conn, nil)

	sub, err := g.Submit(context.Background(), gatewayOrder("paper"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.Equal(t, 1, conn.callCount(), "permanent failures must not be retried")
	require.Len(t, sub.Attempts, 1)
	assert.Equal(t, domain.ErrClassPermanent, sub.Attempts[0].ErrClass)
}

func TestGateway_Submit_TimeoutIsTransient(t *testing.T) {
	conn := &mockConnector{
		name:   "paper",
		delay:  100 * time.Millisecond,
		script: []error{nil, nil},
	}
	g := newTestGateway(t, conn, func(cfg *Config) {
		cfg.AttemptTimeout = 10 * time.Millisecond
	})

	order := gatewayOrder("paper")
	order.MaxRetries = 2
	sub, err := g.Submit(context.Background(), order)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	assert.Equal(t, 2, conn.callCount(), "each timeout consumes one retry attempt")
	for _, res := range sub.Attempts {
		assert.Equal(t, domain.ErrClassTransient, res.ErrClass)
	}
}

func TestGateway_Submit_HaltBeforeSubmit(t *testing.T) {
	conn := &mockConnector{name: "paper"}
	g := newTestGateway(t, conn, nil)

	g.EmergencyHalt(context.Background())
	sub, err := g.Submit(context.Background(), gatewayOrder("paper"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrHalted)
	assert.Equal(t, 0, conn.callCount())
	require.Len(t, sub.Attempts, 1)
	assert.Equal(t, domain.ErrClassHalted, sub.Attempts[0].ErrClass)
}

func TestGateway_Submit_HaltWakesRetrySleep(t *testing.T) {
	firstAttempt := make(chan struct{})
	conn := &mockConnector{
		name:   "paper",
		script: []error{ports.ErrExchangeUnavailable, ports.ErrExchangeUnavailable},
	}
	conn.onAttempt = func(n int) {
		if n == 1 {
			close(firstAttempt)
		}
	}
	g := newTestGateway(t, conn, func(cfg *Config) {
		cfg.RetryDelay = 10 * time.Second // Would dominate the test if the halt did not wake the sleep.
	})

	type result struct {
		sub *domain.Submission
		err error
	}
	done := make(chan result, 1)
	go func() {
		sub, err := g.Submit(context.Background(), gatewayOrder("paper"))
		done <- result{sub, err}
	}()

	<-firstAttempt
	time.Sleep(20 * time.Millisecond) // Let the retry loop enter its backoff sleep.
	g.EmergencyHalt(context.Background())

	select {
	case res := <-done:
		require.Error(t, res.err)
		assert.ErrorIs(t, res.err, ports.ErrHalted)
		assert.Equal(t, 1, conn.callCount())
		require.Len(t, res.sub.Attempts, 2)
		assert.Equal(t, domain.ErrClassTransient, res.sub.Attempts[0].ErrClass)
		assert.Equal(t, domain.ErrClassHalted, res.sub.Attempts[1].ErrClass)
	case <-time.After(2 * time.Second):
		t.Fatal("halt did not wake the sleeping retry loop")
	}
}

func TestGateway_HaltAndResume(t *testing.T) {
	conn := &mockConnector{name: "paper"}
	g := newTestGateway(t, conn, nil)

	assert.False(t, g.Halted())
	g.EmergencyHalt(context.Background())
	assert.True(t, g.Halted())
	g.EmergencyHalt(context.Background()) // Idempotent; must not panic on a closed channel.
	assert.True(t, g.Halted())

	g.Resume(context.Background())
	assert.False(t, g.Halted())
	g.Resume(context.Background())
	assert.False(t, g.Halted())

	// Submissions flow again after resume.
	sub, err := g.Submit(context.Background(), gatewayOrder("paper"))
	require.NoError(t, err)
	assert.True(t, sub.Final().Success)
}

func TestGateway_Submit_ContextCancelled(t *testing.T) {
	conn := &mockConnector{name: "paper"}
	g := newTestGateway(t, conn, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub, err := g.Submit(ctx, gatewayOrder("paper"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
	assert.Equal(t, 0, conn.callCount())

	// The aborted attempt is recorded as cancelled, not as a retryable fault.
	require.Len(t, sub.Attempts, 1)
	assert.Equal(t, domain.ErrClassCancelled, sub.Attempts[0].ErrClass)
}

func TestGateway_Cancel(t *testing.T) {
	conn := &mockConnector{name: "paper"}
	g := newTestGateway(t, conn, nil)

	require.NoError(t, g.Cancel(context.Background(), "paper", "ex-9"))
	assert.Equal(t, []string{"ex-9"}, conn.cancelled)

	err := g.Cancel(context.Background(), "nonesuch", "ex-9")
	assert.Error(t, err)

	conn.cancelErr = ports.ErrOrderNotFound
	err = g.Cancel(context.Background(), "paper", "ex-10")
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)
}
