// Package privacy measures what grid cloaking costs: it samples positions
// around a fence, cloaks them, and records the geodesic error and whether
// fence membership survived.
package privacy

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/geoaware/backend/internal/models"
	"github.com/geoaware/backend/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultIterations = 1000
	MaxIterations     = 100000

	// BBoxBuffer widens the sampling box so points just outside the fence
	// are exercised too.
	BBoxBuffer = 0.002

	batchSize = 500
)

// Simulator runs cloaking simulations and persists the samples
type Simulator struct {
	db     *gorm.DB
	oracle Oracle
	tracer *telemetry.BusinessEvents
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Simulator
type Option func(*Simulator)

// WithOracle overrides the spatial oracle
func WithOracle(o Oracle) Option {
	return func(s *Simulator) { s.oracle = o }
}

// WithRand makes sampling reproducible
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) { s.rng = rng }
}

// NewSimulator creates a simulator. PostGIS answers the spatial questions
// on Postgres; any other dialect falls back to in-process geometry.
func NewSimulator(db *gorm.DB, opts ...Option) *Simulator {
	s := &Simulator{
		db:     db,
		tracer: telemetry.NewBusinessEvents(),
		now:    time.Now,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	if db != nil && db.Dialector.Name() == "postgres" {
		s.oracle = NewPostGISOracle(db)
	} else {
		s.oracle = NewGeometryOracle(db)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run simulates iterations uniformly distributed positions over the fence
// bounding box expanded by BBoxBuffer and stores one log per sample. The
// whole run is stored atomically. It returns the number of samples stored.
func (s *Simulator) Run(ctx context.Context, fenceID string, iterations int) (stored int, err error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if iterations > MaxIterations {
		iterations = MaxIterations
	}

	ctx, span := s.tracer.TracePrivacySimulation(ctx, fenceID, iterations)
	defer func() { telemetry.EndSpan(span, err) }()

	box, err := s.oracle.Bounds(ctx, fenceID)
	if err != nil {
		return 0, err
	}
	box = box.Expand(BBoxBuffer)

	retained := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for done := 0; done < iterations; done += batchSize {
			samples := s.sample(box, min(batchSize, iterations-done))
			if err := s.oracle.Evaluate(ctx, fenceID, samples); err != nil {
				return err
			}

			now := s.now().UTC()
			logs := make([]models.PrivacyLog, len(samples))
			for i, smp := range samples {
				if smp.QoSRetained() {
					retained++
				}
				logs[i] = models.PrivacyLog{
					ID:                uuid.NewString(),
					FenceID:           fenceID,
					RealLat:           smp.Real.Lat,
					RealLon:           smp.Real.Lon,
					PerturbedLat:      smp.Perturbed.Lat,
					PerturbedLon:      smp.Perturbed.Lon,
					ErrorMeters:       smp.ErrorMeters,
					IsRealInside:      smp.RealInside,
					IsPerturbedInside: smp.PerturbedInside,
					QoSRetained:       smp.QoSRetained(),
					Timestamp:         now,
				}
			}
			if err := tx.Create(&logs).Error; err != nil {
				return fmt.Errorf("failed to store privacy logs: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	pct := float64(retained) / float64(iterations) * 100
	metrics.RecordPrivacySimulation(iterations, pct)
	logger.Log.Info("Privacy simulation complete",
		logger.WithFenceID(fenceID),
		zap.Int("iterations", iterations),
		zap.Float64("qos_retained_pct", pct),
	)
	return iterations, nil
}

// sample draws n uniform positions in box and cloaks each
func (s *Simulator) sample(box geo.BBox, n int) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, n)
	for i := range out {
		pos := geo.LatLon{
			Lat: box.MinLat + s.rng.Float64()*(box.MaxLat-box.MinLat),
			Lon: box.MinLon + s.rng.Float64()*(box.MaxLon-box.MinLon),
		}
		out[i] = Sample{Real: pos, Perturbed: geo.CloakPoint(pos)}
	}
	return out
}
