package seed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/geoaware/backend/internal/auth"
	"github.com/geoaware/backend/internal/geo"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPassword is set on every seeded account
const DefaultPassword = "password123"

// Midtown Manhattan
const (
	defaultCenterLat = 40.748
	defaultCenterLon = -73.985
)

var fenceNames = []string{
	"City Park", "Jazz Club", "Museum of Art", "Main Square", "Riverside Walk",
	"Market Hall", "Central Station", "Old Library", "Harbor Pier", "Botanical Garden",
}

var contentTypes = []string{"audio", "video", "image", "text"}

// Seeder handles database seeding operations
type Seeder struct {
	db          *gorm.DB
	faker       *gofakeit.Faker
	centerLat   float64
	centerLon   float64
	contentBase string
}

// Option configures a Seeder
type Option func(*Seeder)

// WithFakerSeed makes generated data reproducible
func WithFakerSeed(seed uint64) Option {
	return func(s *Seeder) { s.faker = gofakeit.New(seed) }
}

// WithCenter sets the point fences are scattered around
func WithCenter(lat, lon float64) Option {
	return func(s *Seeder) { s.centerLat, s.centerLon = lat, lon }
}

// WithContentBaseURL sets the content repository used in seeded repo URLs
func WithContentBaseURL(base string) Option {
	return func(s *Seeder) { s.contentBase = strings.TrimSuffix(base, "/") }
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, opts ...Option) *Seeder {
	s := &Seeder{
		db:          db,
		faker:       gofakeit.New(0),
		centerLat:   defaultCenterLat,
		centerLon:   defaultCenterLon,
		contentBase: "http://localhost:3000",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SeedDev seeds an admin, a crowd of users and a neighbourhood of fences
// with content attached
func (s *Seeder) SeedDev(users, fences int) error {
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating admin account...")
	if _, err := s.ensureUser(account{name: "Ada", surname: "Admin", username: "admin", role: models.RoleAdmin}); err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}

	log("Creating users...")
	created, err := s.seedUsers(users)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	log("Creating geofences...")
	gfs, err := s.seedFences(fences)
	if err != nil {
		return fmt.Errorf("failed to seed geofences: %w", err)
	}

	log("Creating content...")
	items, err := s.seedContent(gfs, 1, 3)
	if err != nil {
		return fmt.Errorf("failed to seed content: %w", err)
	}

	logger.Log.Info("Development data ready",
		zap.Int("users", created),
		zap.Int("geofences", len(gfs)),
		zap.Int("content", items))
	return nil
}

// SeedTest seeds a small fixed dataset
func (s *Seeder) SeedTest() error {
	accounts := []account{
		{name: "Ada", surname: "Admin", username: "admin", role: models.RoleAdmin},
		{name: "Alice", surname: "Smith", username: "alice", role: models.RoleUser},
		{name: "Bob", surname: "Johnson", username: "bob", role: models.RoleUser},
		{name: "Charlie", surname: "Brown", username: "charlie", role: models.RoleUser},
	}
	for _, acct := range accounts {
		if _, err := s.ensureUser(acct); err != nil {
			return fmt.Errorf("failed to create test user %s: %w", acct.username, err)
		}
	}

	fences := []models.Geofence{
		{Name: "Test Park", Geometry: geo.NewRectangle(s.centerLat, s.centerLon, s.centerLat+0.002, s.centerLon+0.002)},
		{Name: "Test Museum", Geometry: geo.NewRectangle(s.centerLat+0.01, s.centerLon, s.centerLat+0.011, s.centerLon+0.0015)},
		{Name: "Test Kiosk", Geometry: geo.NewPoint(s.centerLat-0.01, s.centerLon)},
	}
	var stored []models.Geofence
	for _, f := range fences {
		f := f
		err := s.db.Where("name = ?", f.Name).First(&f).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = s.db.Create(&f).Error
		}
		if err != nil {
			return fmt.Errorf("failed to create test geofence %s: %w", f.Name, err)
		}
		stored = append(stored, f)
	}

	if _, err := s.seedContent(stored, 1, 1); err != nil {
		return fmt.Errorf("failed to seed test content: %w", err)
	}
	return nil
}

// Clean removes all domain data (use with caution!)
func (s *Seeder) Clean() error {
	// Delete in reverse order of dependencies
	for _, table := range []string{"privacy_logs", "events", "content_meta", "geofences", "users"} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

type account struct {
	name, surname, username string
	role                    models.Role
}

// ensureUser returns the existing account or creates it with DefaultPassword
func (s *Seeder) ensureUser(acct account) (models.User, error) {
	var user models.User
	err := s.db.Where("username = ?", acct.username).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}

	hash, err := auth.HashPassword(DefaultPassword)
	if err != nil {
		return user, fmt.Errorf("failed to hash password: %w", err)
	}
	user = models.User{
		Name:         acct.name,
		Surname:      acct.surname,
		Username:     acct.username,
		PasswordHash: hash,
		Role:         acct.role,
	}
	return user, s.db.Create(&user).Error
}

// seedUsers creates count users with unique usernames and returns how many were new
func (s *Seeder) seedUsers(count int) (int, error) {
	hash, err := auth.HashPassword(DefaultPassword)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	created := 0
	for i := 0; i < count; i++ {
		username := s.username()
		for attempt := 0; ; attempt++ {
			var n int64
			if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
				return created, err
			}
			if n == 0 {
				break
			}
			username = fmt.Sprintf("%s%d", s.username(), attempt)
		}

		user := models.User{
			Name:         s.faker.FirstName(),
			Surname:      s.faker.LastName(),
			Username:     username,
			PasswordHash: hash,
			Role:         models.RoleUser,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return created, fmt.Errorf("failed to create user: %w", err)
		}
		created++
	}
	return created, nil
}

// username is a lowercase gofakeit username clipped to the accepted length
func (s *Seeder) username() string {
	u := strings.ToLower(s.faker.Username())
	if len(u) > 30 {
		u = u[:30]
	}
	for len(u) < 3 {
		u += "x"
	}
	return u
}

func (s *Seeder) seedFences(count int) ([]models.Geofence, error) {
	fences := s.buildFences(count)
	var stored []models.Geofence
	for _, f := range fences {
		var existing models.Geofence
		err := s.db.Where("name = ?", f.Name).First(&existing).Error
		if err == nil {
			stored = append(stored, existing)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stored, err
		}
		if err := s.db.Create(&f).Error; err != nil {
			return stored, fmt.Errorf("failed to create geofence %s: %w", f.Name, err)
		}
		stored = append(stored, f)
	}
	return stored, nil
}

// buildFences scatters up to count fences within about 2 km of the center.
// Every fifth fence is a point, the rest are rectangles 100 to 300 m wide.
func (s *Seeder) buildFences(count int) []models.Geofence {
	if count > len(fenceNames) {
		count = len(fenceNames)
	}
	out := make([]models.Geofence, 0, count)
	for i := 0; i < count; i++ {
		lat := s.centerLat + s.faker.Float64Range(-0.02, 0.02)
		lon := s.centerLon + s.faker.Float64Range(-0.02, 0.02)

		var g geo.Geometry
		if i%5 == 4 {
			g = geo.NewPoint(lat, lon)
		} else {
			g = geo.NewRectangle(lat, lon,
				lat+s.faker.Float64Range(0.001, 0.003),
				lon+s.faker.Float64Range(0.001, 0.003))
		}
		out = append(out, models.Geofence{
			Name:     fenceNames[i],
			Geometry: g,
			Metadata: models.JSONMap{"category": s.faker.RandomString([]string{"music", "culture", "food", "outdoor"})},
		})
	}
	return out
}

// seedContent attaches between lo and hi content items to each fence
// that has none yet
func (s *Seeder) seedContent(fences []models.Geofence, lo, hi int) (int, error) {
	total := 0
	for _, f := range fences {
		var existing int64
		if err := s.db.Model(&models.ContentMeta{}).Where("fence_id = ?", f.ID).Count(&existing).Error; err != nil {
			return total, err
		}
		if existing > 0 {
			continue
		}
		for i, n := 0, s.faker.IntRange(lo, hi); i < n; i++ {
			item := s.contentFor(f)
			if err := s.db.Create(&item).Error; err != nil {
				return total, fmt.Errorf("failed to create content for %s: %w", f.Name, err)
			}
			total++
		}
	}
	return total, nil
}

func (s *Seeder) contentFor(f models.Geofence) models.ContentMeta {
	return models.ContentMeta{
		FenceID:    f.ID,
		Type:       s.faker.RandomString(contentTypes),
		Descriptor: s.faker.HipsterSentence(),
		RepoURL:    fmt.Sprintf("%s/files/%s", s.contentBase, uuid.NewString()),
	}
}
