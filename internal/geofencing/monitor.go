package geofencing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/models"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ErrUnknownFence is returned for region events of unregistered fences
var ErrUnknownFence = errors.New("unknown fence")

// RegionEventKind is the OS region transition
type RegionEventKind string

const (
	RegionEnter RegionEventKind = "enter"
	RegionExit  RegionEventKind = "exit"
)

// RegionEvent is delivered by the OS when a circular region is crossed.
// Lat and Lon are the precise device position at that moment.
type RegionEvent struct {
	FenceID string
	Kind    RegionEventKind
	Lat     float64
	Lon     float64
}

// Outcome is what the monitor made of an event
type Outcome string

const (
	OutcomeEntered    Outcome = "entered"
	OutcomeExited     Outcome = "exited"
	OutcomeFalseAlarm Outcome = "false_alarm"
	OutcomeIgnored    Outcome = "ignored"
)

// Transition is a state change found by UpdateLocation
type Transition struct {
	FenceID string
	Outcome Outcome
}

// Report is a tracking event sent to the backend
type Report struct {
	Type      models.EventType
	FenceID   string
	Location  geo.LatLon
	Timestamp time.Time
}

// Reporter delivers tracking events to the backend
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

type trackedFence struct {
	fence  Fence
	region CircularRegion
	inside bool
}

// confirms reports whether p is inside the fence itself. Point fences have
// no area, so their circle stands in for them.
func (t *trackedFence) confirms(p geo.LatLon) bool {
	if _, ok := t.fence.Geometry.T.(*geom.Point); ok {
		return t.region.Contains(p)
	}
	return ContainsPoint(t.fence.Geometry, p.Lat, p.Lon)
}

// Monitor keeps the inside/outside state of every registered fence
type Monitor struct {
	mu       sync.Mutex
	fences   map[string]*trackedFence
	notifier Notifier
	reporter Reporter
	privacy  bool
	now      func() time.Time
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithNotifier replaces the default LogNotifier
func WithNotifier(n Notifier) MonitorOption {
	return func(m *Monitor) { m.notifier = n }
}

// WithReporter sends entry and exit events to the backend
func WithReporter(r Reporter) MonitorOption {
	return func(m *Monitor) { m.reporter = r }
}

// WithPrivacy cloaks every reported location
func WithPrivacy(enabled bool) MonitorOption {
	return func(m *Monitor) { m.privacy = enabled }
}

// WithClock overrides the time stamped on reports
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a monitor with no fences
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		fences:   make(map[string]*trackedFence),
		notifier: LogNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetPrivacy toggles location cloaking for future reports
func (m *Monitor) SetPrivacy(enabled bool) {
	m.mu.Lock()
	m.privacy = enabled
	m.mu.Unlock()
}

// RegisterFences replaces the monitored set and returns the circular
// regions to hand to the OS. Fences that stay registered keep their state.
// Fences whose geometry has no vertices are skipped.
func (m *Monitor) RegisterFences(fences []Fence) []CircularRegion {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]*trackedFence, len(fences))
	regions := make([]CircularRegion, 0, len(fences))
	for _, f := range fences {
		region, err := PolygonToCircle(f.ID, f.Geometry)
		if err != nil {
			logger.Log.Warn("Skipping fence", logger.WithFenceID(f.ID), zap.Error(err))
			continue
		}
		t := &trackedFence{fence: f, region: region}
		if prev, ok := m.fences[f.ID]; ok {
			t.inside = prev.inside
		}
		next[f.ID] = t
		regions = append(regions, region)
	}
	m.fences = next

	logger.Log.Info("Geofences registered", zap.Int("count", len(regions)))
	return regions
}

// Inside returns the IDs of the fences the device is currently in
func (m *Monitor) Inside() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, t := range m.fences {
		if t.inside {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// HandleRegionEvent processes an OS region event. An enter is confirmed
// against the fence before the user is notified and an entry is reported;
// otherwise it is a false alarm and nothing changes. An exit is reported
// only when the device was inside.
func (m *Monitor) HandleRegionEvent(ctx context.Context, ev RegionEvent) (Outcome, error) {
	pos := geo.LatLon{Lat: ev.Lat, Lon: ev.Lon}

	m.mu.Lock()
	t, ok := m.fences[ev.FenceID]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownFence, ev.FenceID)
	}

	var outcome Outcome
	switch ev.Kind {
	case RegionEnter:
		switch {
		case !t.confirms(pos):
			outcome = OutcomeFalseAlarm
		case t.inside:
			outcome = OutcomeIgnored
		default:
			t.inside = true
			outcome = OutcomeEntered
		}
	case RegionExit:
		if t.inside {
			t.inside = false
			outcome = OutcomeExited
		} else {
			outcome = OutcomeIgnored
		}
	default:
		m.mu.Unlock()
		return "", fmt.Errorf("invalid region event kind %q", ev.Kind)
	}
	fence := t.fence
	m.mu.Unlock()

	if outcome == OutcomeFalseAlarm {
		logger.Log.Info("False alarm: inside circle but outside fence",
			logger.WithFenceID(fence.ID), zap.Float64("lat", ev.Lat), zap.Float64("lon", ev.Lon))
	}
	return outcome, m.apply(ctx, fence, outcome, pos)
}

// UpdateLocation refines the state of every fence whose circle contains the
// position, catching polygon crossings the OS does not report.
func (m *Monitor) UpdateLocation(ctx context.Context, lat, lon float64) ([]Transition, error) {
	pos := geo.LatLon{Lat: lat, Lon: lon}

	type change struct {
		fence   Fence
		outcome Outcome
	}
	var changes []change

	m.mu.Lock()
	for _, t := range m.fences {
		inside := t.region.Contains(pos) && t.confirms(pos)
		switch {
		case inside && !t.inside:
			t.inside = true
			changes = append(changes, change{t.fence, OutcomeEntered})
		case !inside && t.inside:
			t.inside = false
			changes = append(changes, change{t.fence, OutcomeExited})
		}
	}
	m.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].fence.ID < changes[j].fence.ID })

	transitions := make([]Transition, 0, len(changes))
	var errs []error
	for _, c := range changes {
		transitions = append(transitions, Transition{FenceID: c.fence.ID, Outcome: c.outcome})
		if err := m.apply(ctx, c.fence, c.outcome, pos); err != nil {
			errs = append(errs, err)
		}
	}
	return transitions, errors.Join(errs...)
}

// apply runs the side effects of an outcome
func (m *Monitor) apply(ctx context.Context, f Fence, outcome Outcome, pos geo.LatLon) error {
	var eventType models.EventType
	switch outcome {
	case OutcomeEntered:
		eventType = models.EventEntry
	case OutcomeExited:
		eventType = models.EventExit
	default:
		return nil
	}

	logger.Log.Info("Geofence transition", logger.WithFenceID(f.ID), zap.String("outcome", string(outcome)))

	var errs []error
	if outcome == OutcomeEntered {
		if err := m.notifier.Notify(ctx, EnteredNotification(f)); err != nil {
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}

	m.mu.Lock()
	reporter, privacy := m.reporter, m.privacy
	m.mu.Unlock()

	if reporter != nil {
		if privacy {
			pos = geo.CloakPoint(pos)
		}
		err := reporter.Report(ctx, Report{
			Type:      eventType,
			FenceID:   f.ID,
			Location:  pos,
			Timestamp: m.now().UTC(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("report %s: %w", eventType, err))
		}
	}
	return errors.Join(errs...)
}
