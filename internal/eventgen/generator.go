// Package eventgen produces realistic entry, content_view and exit traffic
// against a running GeoAware backend. Every emitted event keeps the per-user
// session history valid so the analytics endpoints see coherent data.
package eventgen

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/charmbracelet/log"
	"github.com/geoaware/backend/internal/apiclient"
	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/models"
	"github.com/rotisserie/eris"
)

// DefaultSeedSessions is the number of historical visits created by Seed
const DefaultSeedSessions = 40

var (
	// ErrNotAllowed is returned when an event would break session history
	ErrNotAllowed = errors.New("event not allowed for current session")

	// ErrNoCandidate is returned when no user can perform the requested action
	ErrNoCandidate = errors.New("no user available for this action")
)

// API is the part of the backend the generator talks to
type API interface {
	Users(ctx context.Context) ([]models.User, error)
	Geofences(ctx context.Context) ([]models.Geofence, error)
	CreateEvent(ctx context.Context, req apiclient.EventRequest) (*models.Event, error)
}

// Emitted describes an event the backend accepted
type Emitted struct {
	Type      models.EventType
	User      models.User
	Fence     models.Geofence
	Location  geo.LatLon
	Timestamp time.Time
}

// Generator owns the loaded users and fences and the open sessions
type Generator struct {
	api      API
	rng      *gofakeit.Faker
	log      *log.Logger
	now      func() time.Time
	pace     time.Duration
	onEvent  func(Emitted)
	users    []models.User
	fences   []models.Geofence
	sessions *Sessions
}

// Option configures a Generator
type Option func(*Generator)

// WithSeed makes random choices reproducible. Zero picks a random seed.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rng = gofakeit.New(seed) }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithPace sets the pause between events in multi-event scenarios
func WithPace(d time.Duration) Option {
	return func(g *Generator) { g.pace = d }
}

// WithLogger sets the logger used for skipped events and failures
func WithLogger(l *log.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// OnEvent registers a callback for every accepted event
func OnEvent(fn func(Emitted)) Option {
	return func(g *Generator) { g.onEvent = fn }
}

// New creates a generator. Call Load before generating.
func New(api API, opts ...Option) *Generator {
	g := &Generator{
		api:      api,
		rng:      gofakeit.New(0),
		log:      log.New(io.Discard),
		now:      time.Now,
		pace:     20 * time.Millisecond,
		onEvent:  func(Emitted) {},
		sessions: NewSessions(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load fetches users and fences from the backend
func (g *Generator) Load(ctx context.Context) error {
	users, err := g.api.Users(ctx)
	if err != nil {
		return eris.Wrap(err, "load users")
	}
	if len(users) == 0 {
		return eris.New("no users found")
	}
	fences, err := g.api.Geofences(ctx)
	if err != nil {
		return eris.Wrap(err, "load geofences")
	}
	if len(fences) == 0 {
		return eris.New("no geofences found")
	}

	g.users = users
	g.fences = fences
	g.log.Info("Backend data loaded", "users", len(users), "geofences", len(fences))
	return nil
}

// Users returns the loaded users
func (g *Generator) Users() []models.User { return g.users }

// Fences returns the loaded fences
func (g *Generator) Fences() []models.Geofence { return g.fences }

// Sessions exposes the session tracker
func (g *Generator) Sessions() *Sessions { return g.sessions }

// Send posts one event if it is valid for the user's session and records it
func (g *Generator) Send(ctx context.Context, t models.EventType, user models.User, fence models.Geofence, at time.Time) error {
	if !g.sessions.Allowed(t, user.ID, fence.ID) {
		g.log.Debug("Skipped event", "type", t, "user", user.Username, "fence", fence.Name)
		return ErrNotAllowed
	}

	var (
		loc geo.LatLon
		err error
	)
	switch t {
	case models.EventEntry:
		loc, err = BorderPoint(g.rng, fence.Geometry, true)
	case models.EventExit:
		loc, err = BorderPoint(g.rng, fence.Geometry, false)
	default:
		loc, err = ViewPoint(g.rng, fence.Geometry)
	}
	if err != nil {
		return eris.Wrapf(err, "fence %s", fence.Name)
	}

	if _, err := g.api.CreateEvent(ctx, apiclient.NewEventRequest(t, user.ID, fence.ID, loc, at)); err != nil {
		return eris.Wrapf(err, "send %s for %s", t, user.Username)
	}

	g.sessions.Apply(t, user.ID, fence.ID, at)
	g.onEvent(Emitted{Type: t, User: user, Fence: fence, Location: loc, Timestamp: at})
	return nil
}

// Seed replays n historical visits spread over the last seven days. Visits
// start in the evening on past days and earlier in the day for today. About
// 70% include a content view 2 to 6 minutes after entry. Exits follow 30 to
// 119 minutes after entry. Steps that would land in the future are left out.
// Returns the number of events sent.
func (g *Generator) Seed(ctx context.Context, n int) (int, error) {
	if err := g.ready(); err != nil {
		return 0, err
	}
	g.sessions.Reset()

	sent := 0
	for i := 0; i < n; i++ {
		user, ok := g.pickFreeUser()
		if !ok {
			g.log.Warn("Every user is inside a fence, stopping early", "sessions", i)
			break
		}
		fence := g.pickFence()
		now := g.now()
		enter := g.seedEntryTime(now)

		if err := g.Send(ctx, models.EventEntry, user, fence, enter); err != nil {
			return sent, err
		}
		sent++

		if g.rng.Float64() > 0.3 {
			view := enter.Add(time.Duration(g.rng.IntRange(2, 6)) * time.Minute)
			if view.Before(now) {
				if err := g.Send(ctx, models.EventContentView, user, fence, view); err != nil {
					return sent, err
				}
				sent++
			}
		}

		exit := enter.Add(time.Duration(g.rng.IntRange(30, 119)) * time.Minute)
		if exit.Before(now) {
			if err := g.Send(ctx, models.EventExit, user, fence, exit); err != nil {
				return sent, err
			}
			sent++
		}

		if err := g.pause(ctx); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func (g *Generator) seedEntryTime(now time.Time) time.Time {
	daysAgo := g.rng.IntRange(0, 6)
	day := now.AddDate(0, 0, -daysAgo)

	var hour int
	if daysAgo == 0 {
		hour = 0
		if now.Hour() > 0 {
			hour = g.rng.IntRange(0, now.Hour()-1)
		}
	} else {
		hour = g.rng.IntRange(18, 22)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, day.Minute(), day.Second(), 0, day.Location())
}

// Step emits one random event that is valid right now
func (g *Generator) Step(ctx context.Context) (Emitted, error) {
	if err := g.ready(); err != nil {
		return Emitted{}, err
	}

	var kinds []models.EventType
	if _, ok := g.pickFreeUser(); ok {
		kinds = append(kinds, models.EventEntry)
	}
	if len(g.sessions.Viewers("")) > 0 {
		kinds = append(kinds, models.EventContentView)
	}
	if len(g.sessions.Leavers("")) > 0 {
		kinds = append(kinds, models.EventExit)
	}
	if len(kinds) == 0 {
		return Emitted{}, ErrNoCandidate
	}

	var last Emitted
	capture := g.capture(&last)
	defer capture()

	var err error
	switch kinds[g.rng.IntRange(0, len(kinds)-1)] {
	case models.EventEntry:
		err = g.Enter(ctx)
	case models.EventContentView:
		err = g.View(ctx, "")
	default:
		err = g.Exit(ctx, "")
	}
	return last, err
}

// Enter sends an entry for a random user without a session
func (g *Generator) Enter(ctx context.Context) error {
	if err := g.ready(); err != nil {
		return err
	}
	user, ok := g.pickFreeUser()
	if !ok {
		return ErrNoCandidate
	}
	return g.Send(ctx, models.EventEntry, user, g.pickFence(), g.now())
}

// View sends a content view for a random user with an unviewed session,
// optionally restricted to one fence
func (g *Generator) View(ctx context.Context, fenceID string) error {
	return g.fromSession(ctx, models.EventContentView, g.sessions.Viewers(fenceID))
}

// Exit sends an exit for a random user with an open session, optionally
// restricted to one fence
func (g *Generator) Exit(ctx context.Context, fenceID string) error {
	return g.fromSession(ctx, models.EventExit, g.sessions.Leavers(fenceID))
}

func (g *Generator) fromSession(ctx context.Context, t models.EventType, candidates []string) error {
	if len(candidates) == 0 {
		return ErrNoCandidate
	}
	userID := candidates[g.rng.IntRange(0, len(candidates)-1)]
	sess, _ := g.sessions.Get(userID)

	user, ok := g.userByID(userID)
	if !ok {
		return ErrNoCandidate
	}
	fence, ok := g.fenceByID(sess.FenceID)
	if !ok {
		return ErrNoCandidate
	}
	return g.Send(ctx, t, user, fence, g.now())
}

// FullSession walks one free user through entry, view and exit on a random fence
func (g *Generator) FullSession(ctx context.Context) error {
	if err := g.ready(); err != nil {
		return err
	}
	user, ok := g.pickFreeUser()
	if !ok {
		return ErrNoCandidate
	}
	fence := g.pickFence()

	for _, t := range []models.EventType{models.EventEntry, models.EventContentView, models.EventExit} {
		if err := g.Send(ctx, t, user, fence, g.now()); err != nil {
			return err
		}
		if err := g.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Crowd runs n short visits, each viewing content with probability 0.6
func (g *Generator) Crowd(ctx context.Context, n int) error {
	if err := g.ready(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		user, ok := g.pickFreeUser()
		if !ok {
			return ErrNoCandidate
		}
		fence := g.pickFence()

		steps := []models.EventType{models.EventEntry}
		if g.rng.Float64() > 0.4 {
			steps = append(steps, models.EventContentView)
		}
		steps = append(steps, models.EventExit)

		for _, t := range steps {
			if err := g.Send(ctx, t, user, fence, g.now()); err != nil {
				return err
			}
			if err := g.pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Migrate moves every user into the first fence whose name contains match
// (case-insensitive), or the first fence when nothing matches. Users inside
// another fence leave it first. Returns the target fence.
func (g *Generator) Migrate(ctx context.Context, match string) (models.Geofence, error) {
	if err := g.ready(); err != nil {
		return models.Geofence{}, err
	}
	target := g.fences[0]
	for _, f := range g.fences {
		if match != "" && strings.Contains(strings.ToLower(f.Name), strings.ToLower(match)) {
			target = f
			break
		}
	}

	for _, u := range g.users {
		if sess, ok := g.sessions.Get(u.ID); ok {
			if sess.FenceID == target.ID {
				continue
			}
			if from, ok := g.fenceByID(sess.FenceID); ok {
				if err := g.Send(ctx, models.EventExit, u, from, g.now()); err != nil {
					return target, err
				}
			}
		}
		if err := g.Send(ctx, models.EventEntry, u, target, g.now()); err != nil {
			return target, err
		}
		if err := g.pause(ctx); err != nil {
			return target, err
		}
	}
	return target, nil
}

// Live emits a random valid event every interval until ctx is cancelled.
// Send failures are logged and do not stop the loop.
func (g *Generator) Live(ctx context.Context, interval time.Duration) error {
	if err := g.ready(); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := g.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				g.log.Warn("Live event failed", "err", err)
			}
		}
	}
}

func (g *Generator) ready() error {
	if len(g.users) == 0 || len(g.fences) == 0 {
		return eris.New("generator has no users or fences, call Load first")
	}
	return nil
}

func (g *Generator) pause(ctx context.Context) error {
	if g.pace <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// capture temporarily wraps onEvent so Step can return what it sent
func (g *Generator) capture(dst *Emitted) func() {
	prev := g.onEvent
	g.onEvent = func(e Emitted) {
		*dst = e
		prev(e)
	}
	return func() { g.onEvent = prev }
}

func (g *Generator) pickFence() models.Geofence {
	return g.fences[g.rng.IntRange(0, len(g.fences)-1)]
}

func (g *Generator) pickFreeUser() (models.User, bool) {
	var free []models.User
	for _, u := range g.users {
		if _, ok := g.sessions.Get(u.ID); !ok {
			free = append(free, u)
		}
	}
	if len(free) == 0 {
		return models.User{}, false
	}
	return free[g.rng.IntRange(0, len(free)-1)], true
}

func (g *Generator) userByID(id string) (models.User, bool) {
	for _, u := range g.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

func (g *Generator) fenceByID(id string) (models.Geofence, bool) {
	for _, f := range g.fences {
		if f.ID == id {
			return f, true
		}
	}
	return models.Geofence{}, false
}
