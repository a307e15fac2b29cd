package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andi-rb/osmmatch/internal/condition"
	"github.com/andi-rb/osmmatch/internal/matcherr"
	"github.com/andi-rb/osmmatch/internal/reconstruct"
	"github.com/andi-rb/osmmatch/pkg/matchengine"
)

type fakeService struct {
	result matchengine.Result
	err    error
	gotCfg matchengine.Config
	gotRaw []condition.RawPoint
}

func (f *fakeService) Match(ctx context.Context, raw []condition.RawPoint, cfg matchengine.Config) (matchengine.Result, error) {
	f.gotRaw = raw
	f.gotCfg = cfg
	return f.result, f.err
}

func newTestRouter(svc MatchingService, base matchengine.Config) http.Handler {
	r := chi.NewRouter()
	Router(r, svc, base)
	return r
}

func postJSON(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/match", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMatchHandlerReturnsMatchResponse(t *testing.T) {
	svc := &fakeService{
		result: matchengine.Result{
			Stats:  reconstruct.Stats{Result: "ok", MatchedPoints: 2, MatchedProportion: 1},
			Points: []reconstruct.PointMatch{{ObservationIndex: 0}, {ObservationIndex: 1}},
		},
	}
	h := newTestRouter(svc, matchengine.DefaultConfig())

	rr := postJSON(t, h, MatchRequest{
		Points: []PointInput{
			{DateTime: "2026-01-01 00:00:00", Lat: 0, Lon: 0.001},
			{DateTime: "2026-01-01 00:00:10", Lat: 0, Lon: 0.002},
		},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	var resp MatchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Stats.Result)
	assert.Len(t, resp.Points, 2)
	assert.Len(t, svc.gotRaw, 2)
}

func TestMatchHandlerAppliesConfigOverride(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(svc, matchengine.DefaultConfig())

	radius := 25.0
	postJSON(t, h, MatchRequest{
		Points: []PointInput{
			{DateTime: "2026-01-01 00:00:00", Lat: 0, Lon: 0.001},
			{DateTime: "2026-01-01 00:00:10", Lat: 0, Lon: 0.002},
		},
		Config: &ConfigOverride{SearchRadiusM: &radius},
	})

	assert.Equal(t, 25.0, svc.gotCfg.SearchRadiusM)
}

func TestMatchHandlerRejectsTooFewPoints(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(svc, matchengine.DefaultConfig())

	rr := postJSON(t, h, MatchRequest{
		Points: []PointInput{{DateTime: "2026-01-01 00:00:00", Lat: 0, Lon: 0.001}},
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMatchHandlerTranslatesNotEnoughPointsToUnprocessable(t *testing.T) {
	svc := &fakeService{err: matcherr.NotEnoughPointsf("only 1 point")}
	h := newTestRouter(svc, matchengine.DefaultConfig())

	rr := postJSON(t, h, MatchRequest{
		Points: []PointInput{
			{DateTime: "2026-01-01 00:00:00", Lat: 0, Lon: 0.001},
			{DateTime: "2026-01-01 00:00:10", Lat: 0, Lon: 0.002},
		},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestMatchHandlerTranslatesDBErrorToServiceUnavailable(t *testing.T) {
	svc := &fakeService{err: matcherr.DBErrorf(assert.AnError)}
	h := newTestRouter(svc, matchengine.DefaultConfig())

	rr := postJSON(t, h, MatchRequest{
		Points: []PointInput{
			{DateTime: "2026-01-01 00:00:00", Lat: 0, Lon: 0.001},
			{DateTime: "2026-01-01 00:00:10", Lat: 0, Lon: 0.002},
		},
	})

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
