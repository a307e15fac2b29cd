// Command matchserver is a thin HTTP wrapper around pkg/matchengine
// (spec.md §6's serving surface). Grounded on cmd/mapmatch/main.go's
// flag-based process configuration and chi/cors router wiring; the
// contraction-hierarchy graph load, badger cache open, and road
// snapper build are replaced with a single SQLite gateway open, since
// this engine has no precomputed graph to load.
package main

import (
	"database/sql"
	"flag"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "modernc.org/sqlite"

	"github.com/andi-rb/osmmatch/internal/osmgw"
	"github.com/andi-rb/osmmatch/internal/restapi"
	"github.com/andi-rb/osmmatch/pkg/matchengine"
)

var (
	listenAddr = flag.String("listenaddr", ":5050", "server listen address")
	dbPath     = flag.String("db", "./osmmatch.db", "sqlite database path (osm2pgsql-shaped schema)")

	searchRadiusM        = flag.Float64("searchradius", 50, "default candidate search radius, meters")
	minPoints            = flag.Int("minpoints", 10, "default minimum non-gap points required to match")
	maxVelocity          = flag.Float64("maxvelocity", 250, "default max plausible velocity, m/s")
	sigmaZ               = flag.Float64("sigmaz", 10, "default GPS noise standard deviation, meters")
	beta                 = flag.Float64("beta", 10, "default transition probability scale")
	maxIter              = flag.Int("maxiter", 1, "default max problematic-point-removal passes")
	minPointDistance     = flag.Float64("minpointdistance", 30, "default minimum distance between kept points, meters")
	parameterWindow      = flag.Int("parameterwindow", 3, "default derived-quantity window size")
	bearingPenaltyWeight = flag.Float64("bearingpenaltyweight", 1.0, "default bearing mismatch penalty weight")
	viterbiLookahead     = flag.Int("viterbilookahead", 1, "default Viterbi lookahead depth")
	dbThreads            = flag.Int("dbthreads", 20, "default gateway query fan-out width")
)

func main() {
	flag.Parse()

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	gw := osmgw.NewSQLiteGateway(db)
	engine := matchengine.New(gw)

	baseCfg := matchengine.Config{
		SearchRadiusM:        *searchRadiusM,
		MinPoints:            *minPoints,
		MaxVelocity:          *maxVelocity,
		SigmaZ:               *sigmaZ,
		Beta:                 *beta,
		MaxIter:              *maxIter,
		MinPointDistance:     *minPointDistance,
		ParameterWindow:      *parameterWindow,
		BearingPenaltyWeight: *bearingPenaltyWeight,
		ViterbiLookahead:     *viterbiLookahead,
		PointsSummary:        true,
		SegmentsSummary:      true,
		DBThreads:            *dbThreads,
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Mount("/debug", middleware.Profiler())
	r.Handle("/metrics", promhttp.Handler())

	restapi.Router(r, engine, baseCfg)

	log.Printf("osmmatch matchserver ready, listening on %s", *listenAddr)
	log.Fatal(http.ListenAndServe(*listenAddr, r))
}
