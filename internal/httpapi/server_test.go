package httpapi

import (
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/config"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg := config.Load()
	return NewServer(cfg, db, nil, nil, nil, nil, nil, nil, nil), mock
}

func TestHealthzAlwaysOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestReadyzFailsWhenDBUnreachable(t *testing.T) {
	s, mock := newTestServer(t)
	mock.ExpectPing().WillReturnError(assert.AnError)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	s.handleReadyz(rec, req)
	assert.Equal(t, 503, rec.Code)
}

func TestReadyzOKWhenDBReachable(t *testing.T) {
	s, mock := newTestServer(t)
	mock.ExpectPing()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	s.handleReadyz(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestOnchainFeaturesRejectsMalformedAddress(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/onchain/features?chain=eth&address=not-an-address", nil)
	rec := httptest.NewRecorder()
	s.handleOnchainFeatures(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestExpertOnchainDisabledByDefault(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/expert/onchain?chain=eth&address=0x1111111111111111111111111111111111111111", nil)
	rec := httptest.NewRecorder()
	s.handleExpertOnchain(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestExpertOnchainRejectsMissingKey(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.ExpertKey = "secret"
	req := httptest.NewRequest("GET", "/expert/onchain?chain=eth&address=0x1111111111111111111111111111111111111111", nil)
	rec := httptest.NewRecorder()
	s.handleExpertOnchain(rec, req)
	assert.Equal(t, 403, rec.Code)
}

func TestSignalsHeatRequiresExactlyOneIdentifier(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/signals/heat", nil)
	rec := httptest.NewRecorder()
	s.handleSignalsHeat(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestSignalByEventKeyRejectsMalformedKey(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/signals/not-hex", nil)
	req = mux.SetURLVars(req, map[string]string{"event_key": "not-hex"})
	rec := httptest.NewRecorder()
	s.handleSignalByEventKey(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestOnchainQueryRejectsUnknownTemplate(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/onchain/query?template=drop_table", nil)
	rec := httptest.NewRecorder()
	s.handleOnchainQuery(rec, req)
	assert.Equal(t, 400, rec.Code)
}
