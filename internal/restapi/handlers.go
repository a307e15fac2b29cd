// Package restapi is the thin JSON-over-HTTP wrapper around
// pkg/matchengine (spec.md §6's serving surface, the AMBIENT STACK
// addition). Grounded on pkg/server/mm_rest/handlers.go's router
// wiring, Bind/validate/translateError flow, and ErrResponse shape;
// the request/response bodies themselves are rewritten for the
// map-matching row shape (datetime/lat/lon rows + config overrides)
// instead of navigatorX's plain coordinate list.
package restapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/andi-rb/osmmatch/internal/condition"
	"github.com/andi-rb/osmmatch/internal/matcherr"
	"github.com/andi-rb/osmmatch/pkg/matchengine"
)

// MatchingService is the subset of *matchengine.Engine this layer
// depends on, kept as an interface so handlers can be tested against a
// fake engine the way MapMatchingHandler is tested against a fake
// MapMatchingService.
type MatchingService interface {
	Match(ctx context.Context, raw []condition.RawPoint, cfg matchengine.Config) (matchengine.Result, error)
}

type MatchingHandler struct {
	svc       MatchingService
	baseCfg   matchengine.Config
	validate  *validator.Validate
	translate ut.Translator
}

// Router mounts the matching endpoint under /api/match. baseCfg
// supplies every match parameter a request does not itself override.
func Router(r chi.Router, svc MatchingService, baseCfg matchengine.Config) {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	validate := validator.New()
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)

	handler := &MatchingHandler{svc: svc, baseCfg: baseCfg, validate: validate, translate: trans}

	r.Post("/api/match", handler.Match)
}

// PointInput is one caller-supplied GPS row (spec.md §6: "caller
// specifies the column holding datetime, lat, lon").
type PointInput struct {
	DateTime string         `json:"datetime" validate:"required"`
	Lat      float64        `json:"lat" validate:"lt=90,gt=-90"`
	Lon      float64        `json:"lon" validate:"lt=180,gt=-180"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// ConfigOverride overrides individual fields of the server's baseCfg
// for one request (spec.md §6: "every match parameter is
// caller-overridable per call"). Nil fields fall back to baseCfg.
type ConfigOverride struct {
	SearchRadiusM        *float64 `json:"search_radius_m,omitempty"`
	MinPoints            *int     `json:"min_points,omitempty"`
	MaxVelocity          *float64 `json:"max_velocity,omitempty"`
	SigmaZ               *float64 `json:"sigma_z,omitempty"`
	Beta                 *float64 `json:"beta,omitempty"`
	MaxIter              *int     `json:"max_iter,omitempty"`
	MinPointDistance     *float64 `json:"min_point_distance,omitempty"`
	ParameterWindow      *int     `json:"parameter_window,omitempty"`
	BearingPenaltyWeight *float64 `json:"bearing_penalty_weight,omitempty"`
	ViterbiLookahead     *int     `json:"viterbi_lookahead,omitempty"`
}

func (c *ConfigOverride) apply(base matchengine.Config) matchengine.Config {
	if c == nil {
		return base
	}
	if c.SearchRadiusM != nil {
		base.SearchRadiusM = *c.SearchRadiusM
	}
	if c.MinPoints != nil {
		base.MinPoints = *c.MinPoints
	}
	if c.MaxVelocity != nil {
		base.MaxVelocity = *c.MaxVelocity
	}
	if c.SigmaZ != nil {
		base.SigmaZ = *c.SigmaZ
	}
	if c.Beta != nil {
		base.Beta = *c.Beta
	}
	if c.MaxIter != nil {
		base.MaxIter = *c.MaxIter
	}
	if c.MinPointDistance != nil {
		base.MinPointDistance = *c.MinPointDistance
	}
	if c.ParameterWindow != nil {
		base.ParameterWindow = *c.ParameterWindow
	}
	if c.BearingPenaltyWeight != nil {
		base.BearingPenaltyWeight = *c.BearingPenaltyWeight
	}
	if c.ViterbiLookahead != nil {
		base.ViterbiLookahead = *c.ViterbiLookahead
	}
	return base
}

// MatchRequest model info
//
//	@Description	request body for a map-matching run: a row per GPS
//	fix plus optional per-request config overrides
type MatchRequest struct {
	Points []PointInput    `json:"points" validate:"required,min=2,dive"`
	Config *ConfigOverride `json:"config,omitempty"`
}

func (req *MatchRequest) Bind(r *http.Request) error {
	if len(req.Points) == 0 {
		return errors.New("points must not be empty")
	}
	return nil
}

// MatchResponse model info
//
//	@Description	response body: per-point matches, reconstructed
//	segments, and summary statistics
type MatchResponse struct {
	Stats       StatsDTO        `json:"stats"`
	Points      []PointDTO      `json:"points"`
	Segments    []SegmentDTO    `json:"segments"`
	Breaks      []BreakDTO      `json:"breaks,omitempty"`
	Linestrings []LineStringDTO `json:"linestrings,omitempty"`
}

// LineStringDTO is one unbroken run of matched points (spec.md §6),
// offered both as plain coordinate groups and as a Google-encoded
// polyline string.
type LineStringDTO struct {
	Lon      []float64 `json:"lon"`
	Lat      []float64 `json:"lat"`
	Polyline string    `json:"polyline"`
}

type StatsDTO struct {
	Result            string  `json:"result"`
	InPoints          int     `json:"in_points"`
	CleanedPoints     int     `json:"cleaned_points"`
	MatchedPoints     int     `json:"matched_points"`
	MatchedProportion float64 `json:"matched_proportion"`
	GPSDistanceM      float64 `json:"gps_distance_m"`
	SegmentDistanceM  float64 `json:"segment_distance_m"`
	MeanXTE           float64 `json:"mean_xte"`
	TripDurationMin   float64 `json:"trip_duration_min"`
}

type PointDTO struct {
	ObservationIndex int       `json:"observation_index"`
	DateTime         time.Time `json:"datetime"`
	GPSLat           float64   `json:"gps_lat"`
	GPSLon           float64   `json:"gps_lon"`
	MatchedLat       float64   `json:"matched_lat"`
	MatchedLon       float64   `json:"matched_lon"`
	XTE              float64   `json:"xte_m"`
	WayID            int64     `json:"way_id"`
}

type SegmentDTO struct {
	WayID        int64 `json:"way_id"`
	SegmentIndex int   `json:"segment_index"`
	Direction    int   `json:"direction"`
	Node1        int64 `json:"node1"`
	Node2        int64 `json:"node2"`
	PointIndices []int `json:"point_indices,omitempty"`
}

type BreakDTO struct {
	AfterObservationIndex int `json:"after_observation_index"`
}

func renderMatchResponse(res matchengine.Result) *MatchResponse {
	resp := &MatchResponse{
		Stats: StatsDTO{
			Result:            res.Stats.Result,
			InPoints:          res.Stats.InPoints,
			CleanedPoints:     res.Stats.CleanedPoints,
			MatchedPoints:     res.Stats.MatchedPoints,
			MatchedProportion: res.Stats.MatchedProportion,
			GPSDistanceM:      res.Stats.GPSDistanceM,
			SegmentDistanceM:  res.Stats.SegmentDistanceM,
			MeanXTE:           res.Stats.MeanXTE,
			TripDurationMin:   res.Stats.TripDurationMin,
		},
	}
	for _, p := range res.Points {
		resp.Points = append(resp.Points, PointDTO{
			ObservationIndex: p.ObservationIndex,
			DateTime:         p.DateTime,
			GPSLat:           p.GPSLat,
			GPSLon:           p.GPSLon,
			MatchedLat:       p.Candidate.Projected.Lat,
			MatchedLon:       p.Candidate.Projected.Lon,
			XTE:              p.Candidate.XTE,
			WayID:            p.Candidate.Segment.WayID,
		})
	}
	for _, s := range res.Segments {
		resp.Segments = append(resp.Segments, SegmentDTO{
			WayID:        s.Segment.WayID,
			SegmentIndex: s.Segment.SegmentIndex,
			Direction:    s.Direction,
			Node1:        s.Segment.Node1,
			Node2:        s.Segment.Node2,
			PointIndices: s.PointIndices,
		})
	}
	for _, b := range res.Breaks {
		resp.Breaks = append(resp.Breaks, BreakDTO{AfterObservationIndex: b.AfterObservationIndex})
	}
	for _, g := range res.Linestrings {
		resp.Linestrings = append(resp.Linestrings, LineStringDTO{Lon: g.Lon, Lat: g.Lat, Polyline: g.EncodePolyline()})
	}
	return resp
}

// Match
//
//	@Summary		run map matching over a sequence of GPS fixes
//	@Description	conditions, candidate-searches, and HMM/Viterbi-decodes a GPS trace against the road network
//	@Tags			matching
//	@Param			body	body	MatchRequest	true	"GPS rows and optional config overrides"
//	@Accept			application/json
//	@Produce		application/json
//	@Router			/api/match [post]
//	@Success		200	{object}	MatchResponse
//	@Failure		400	{object}	ErrResponse
//	@Failure		422	{object}	ErrResponse
//	@Failure		500	{object}	ErrResponse
func (h *MatchingHandler) Match(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	data := &MatchRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := h.validate.Struct(*data); err != nil {
		vv := translateError(err, h.translate)
		render.Render(w, r, ErrValidation(err, vv))
		return
	}

	raw := make([]condition.RawPoint, len(data.Points))
	for i, p := range data.Points {
		raw[i] = condition.RawPoint{
			OriginalIndex: i,
			DateTimeRaw:   p.DateTime,
			Lon:           p.Lon,
			Lat:           p.Lat,
			Extra:         p.Extra,
		}
	}

	cfg := data.Config.apply(h.baseCfg)

	result, err := h.svc.Match(r.Context(), raw, cfg)
	observeMatch(matcherr.KindOf(err), time.Since(start))
	if err != nil {
		render.Render(w, r, translateMatchError(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, renderMatchResponse(result))
}

func translateError(err error, trans ut.Translator) (errs []error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}
	for _, e := range verrs {
		errs = append(errs, errors.New(e.Translate(trans)))
	}
	return errs
}
