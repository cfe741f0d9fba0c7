package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/metrics"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_LedgerEvents(t *testing.T) {
	m := metrics.New()

	m.TurnoverRecorded(ledger.Turnover{Direction: ledger.Incoming, Quantity: decimal.RequireFromString("2.5")})
	m.TurnoverRecorded(ledger.Turnover{Direction: ledger.Expense, IsCorrection: true, Quantity: decimal.NewFromInt(1)})
	m.TurnoverRejected(ledger.RuleStockSufficient)
	m.TransferFinished(nil)
	m.TransferFinished(errors.New("boom"))

	body := scrape(t, m)
	assert.Contains(t, body, `stock_turnovers_recorded_total{correction="false",direction="incoming"} 1`)
	assert.Contains(t, body, `stock_turnovers_recorded_total{correction="true",direction="expense"} 1`)
	assert.Contains(t, body, `stock_turnover_quantity_total{direction="incoming"} 2.5`)
	assert.Contains(t, body, `stock_turnovers_rejected_total{rule="stock_sufficient"} 1`)
	assert.Contains(t, body, `stock_transfers_total{result="committed"} 1`)
	assert.Contains(t, body, `stock_transfers_total{result="failed"} 1`)
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/material/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/material/1", "/material/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m)
	assert.Contains(t, body, `stock_http_request_duration_seconds_count{method="GET",route="/material/{id}",status="404"} 2`)
}
