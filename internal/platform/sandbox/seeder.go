// Package sandbox generates reproducible synthetic directory data (donors,
// recipients, doctors and hospitals) for demos and local development.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/domain/hospital"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume of generated data. A zero Seed picks a
// time-based one.
type SeedConfig struct {
	Donors      int    `json:"donors"`
	Recipients  int    `json:"recipients"`
	Doctors     int    `json:"doctors"`
	Hospitals   int    `json:"hospitals"`
	EmailDomain string `json:"emailDomain,omitempty"`
	Seed        int64  `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Donors:      40,
		Recipients:  25,
		Doctors:     6,
		Hospitals:   3,
		EmailDomain: "example.org",
	}
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	Seed       int64         `json:"seed"`
	Hospitals  int           `json:"hospitals"`
	Donors     int           `json:"donors"`
	Recipients int           `json:"recipients"`
	Doctors    int           `json:"doctors"`
	Total      int           `json:"total"`
	Duration   time.Duration `json:"duration"`
}

// Dataset is the generated data before it is written anywhere.
type Dataset struct {
	Hospitals []*hospital.Hospital     `json:"hospitals"`
	Users     []*directory.UserRecord `json:"users"`
}

// ---------------------------------------------------------------------------
// Value pools
// ---------------------------------------------------------------------------

var (
	firstNames = []string{
		"Aarav", "Aisha", "Arjun", "Bilal", "Chen", "Daniela", "Divya", "Elena",
		"Farah", "Gabriel", "Hana", "Ibrahim", "Isha", "James", "Kavya", "Lucas",
		"Maya", "Mohammed", "Nadia", "Omar", "Priya", "Rahul", "Sara", "Tariq",
		"Uma", "Vikram", "Wei", "Yusuf", "Zara", "Ananya", "Rohan", "Meera",
	}
	lastNames = []string{
		"Sharma", "Khan", "Patel", "Iyer", "Reddy", "Das", "Nair", "Gupta",
		"Fernandes", "Mehta", "Singh", "Rao", "Bose", "Kapoor", "Joshi", "Menon",
		"Garcia", "Okafor", "Nguyen", "Haddad", "Kowalski", "Silva", "Tanaka",
	}
	cities = []struct{ City, State string }{
		{"Mumbai", "Maharashtra"}, {"Pune", "Maharashtra"}, {"Delhi", "Delhi"},
		{"Bengaluru", "Karnataka"}, {"Chennai", "Tamil Nadu"}, {"Hyderabad", "Telangana"},
		{"Kolkata", "West Bengal"}, {"Ahmedabad", "Gujarat"}, {"Jaipur", "Rajasthan"},
	}
	hospitalSuffixes = []string{
		"General Hospital", "Medical Centre", "Institute of Transplant Sciences",
		"Multispeciality Hospital", "Care Hospital",
	}

	donorOrgans     = []string{"kidney", "liver", "cornea", "heart", "lung", "pancreas", "bone marrow"}
	recipientOrgans = []string{"kidney", "kidney", "kidney", "liver", "liver", "cornea", "heart", "lung", "pancreas"}
)

// bloodWeights approximates population frequency so most generated pairs
// share a common group.
var bloodWeights = []struct {
	Group  string
	Weight int
}{
	{"O+", 37}, {"B+", 32}, {"A+", 22}, {"AB+", 7},
	{"O-", 1}, {"B-", 1}, {"A-", 1}, {"AB-", 1},
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic records. It is not safe for
// concurrent use.
type DataGenerator struct {
	rng    *rand.Rand
	domain string
	seq    int
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed)), domain: "example.org"}
}

// nextID derives a UUID from the generator's stream so ids repeat with the seed.
func (g *DataGenerator) nextID() uuid.UUID {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return uuid.New()
	}
	return id
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) bloodGroup() string {
	total := 0
	for _, w := range bloodWeights {
		total += w.Weight
	}
	n := g.rng.Intn(total)
	for _, w := range bloodWeights {
		if n < w.Weight {
			return w.Group
		}
		n -= w.Weight
	}
	return bloodWeights[0].Group
}

func (g *DataGenerator) phone() string {
	return fmt.Sprintf("+91 %d%04d %05d", 7+g.rng.Intn(3), g.rng.Intn(10000), g.rng.Intn(100000))
}

// organs picks between 1 and max distinct organs from pool.
func (g *DataGenerator) organs(pool []string, max int) []string {
	n := 1 + g.rng.Intn(max)
	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for _, i := range g.rng.Perm(len(pool)) {
		if len(out) == n {
			break
		}
		if !seen[pool[i]] {
			seen[pool[i]] = true
			out = append(out, pool[i])
		}
	}
	return out
}

// GenerateUser builds a directory record for role. Roughly one in five
// records has no phone number, so heuristic scores vary.
func (g *DataGenerator) GenerateUser(role string) *directory.UserRecord {
	g.seq++
	first, last := g.pick(firstNames), g.pick(lastNames)
	u := &directory.UserRecord{
		ID:            g.nextID(),
		Role:          role,
		FullName:      first + " " + last,
		Email:         fmt.Sprintf("%s.%s.%d@%s", strings.ToLower(first), strings.ToLower(last), g.seq, g.domain),
		BloodGroup:    g.bloodGroup(),
		OrganTypes:    []string{},
		EmailVerified: true,
	}
	if g.rng.Intn(5) != 0 {
		u.Phone = g.phone()
	}

	switch role {
	case directory.RoleDonor:
		u.OrganTypes = g.organs(donorOrgans, 3)
		u.Verified = g.rng.Intn(4) != 0
	case directory.RoleRecipient:
		u.OrganTypes = g.organs(recipientOrgans, 1)
		u.Verified = g.rng.Intn(4) != 0
	case directory.RoleDoctor:
		u.FullName = "Dr. " + u.FullName
		u.Verified = true
	}
	return u
}

func (g *DataGenerator) GenerateHospital() *hospital.Hospital {
	place := cities[g.rng.Intn(len(cities))]
	name := fmt.Sprintf("%s %s", g.pick(lastNames), g.pick(hospitalSuffixes))
	return &hospital.Hospital{
		ID:     g.nextID(),
		Name:   name,
		City:   place.City,
		State:  place.State,
		Phone:  g.phone(),
		Email:  fmt.Sprintf("contact@%s.%s", strings.ToLower(strings.Fields(name)[0]), g.domain),
		Active: true,
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// UserSink receives generated directory records.
type UserSink interface {
	Create(ctx context.Context, u *directory.UserRecord) error
}

// HospitalSink receives generated hospitals.
type HospitalSink interface {
	CreateHospital(ctx context.Context, h *hospital.Hospital) error
}

// Seeder generates a Dataset and optionally writes it through the sinks.
type Seeder struct {
	config SeedConfig
}

func NewSeeder(config SeedConfig) *Seeder {
	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}
	return &Seeder{config: config}
}

func (s *Seeder) Config() SeedConfig { return s.config }

// Generate builds the dataset. Doctors are spread across the hospitals.
func (s *Seeder) Generate() *Dataset {
	g := NewDataGenerator(s.config.Seed)
	if s.config.EmailDomain != "" {
		g.domain = s.config.EmailDomain
	}

	ds := &Dataset{
		Hospitals: make([]*hospital.Hospital, 0, s.config.Hospitals),
		Users:     make([]*directory.UserRecord, 0, s.config.Doctors+s.config.Donors+s.config.Recipients),
	}
	for i := 0; i < s.config.Hospitals; i++ {
		ds.Hospitals = append(ds.Hospitals, g.GenerateHospital())
	}
	for i := 0; i < s.config.Doctors; i++ {
		u := g.GenerateUser(directory.RoleDoctor)
		if len(ds.Hospitals) > 0 {
			hid := ds.Hospitals[i%len(ds.Hospitals)].ID
			u.HospitalID = &hid
		}
		ds.Users = append(ds.Users, u)
	}
	for i := 0; i < s.config.Donors; i++ {
		ds.Users = append(ds.Users, g.GenerateUser(directory.RoleDonor))
	}
	for i := 0; i < s.config.Recipients; i++ {
		ds.Users = append(ds.Users, g.GenerateUser(directory.RoleRecipient))
	}
	return ds
}

// Run generates the dataset and writes hospitals first so doctors can
// reference them. It stops at the first write error.
func (s *Seeder) Run(ctx context.Context, users UserSink, hospitals HospitalSink) (*SeedResult, error) {
	start := time.Now()
	ds := s.Generate()
	res := &SeedResult{Seed: s.config.Seed}

	if hospitals != nil {
		for _, h := range ds.Hospitals {
			if err := hospitals.CreateHospital(ctx, h); err != nil {
				return res, fmt.Errorf("seed hospital %q: %w", h.Name, err)
			}
			res.Hospitals++
		}
	}
	for _, u := range ds.Users {
		if hospitals == nil {
			u.HospitalID = nil
		}
		if err := users.Create(ctx, u); err != nil {
			return res, fmt.Errorf("seed %s %q: %w", u.Role, u.Email, err)
		}
		switch u.Role {
		case directory.RoleDonor:
			res.Donors++
		case directory.RoleRecipient:
			res.Recipients++
		case directory.RoleDoctor:
			res.Doctors++
		}
	}

	res.Total = res.Hospitals + res.Donors + res.Recipients + res.Doctors
	res.Duration = time.Since(start)
	return res, nil
}

// ExportNDJSON writes the generated users as newline-delimited JSON.
func (s *Seeder) ExportNDJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, u := range s.Generate().Users {
		if err := enc.Encode(u); err != nil {
			return fmt.Errorf("encoding user %s: %w", u.ID, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// SeedHandler: Echo HTTP handlers
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding over HTTP. It is mounted in development only.
type SeedHandler struct {
	users     UserSink
	hospitals HospitalSink
	mu        sync.Mutex
}

func NewSeedHandler(users UserSink, hospitals HospitalSink) *SeedHandler {
	return &SeedHandler{users: users, hospitals: hospitals}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.GET("/seed/preview", h.handlePreview)
}

func bindConfig(c echo.Context) (SeedConfig, error) {
	cfg := DefaultSeedConfig()
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return cfg, err
		}
	}
	if v := c.QueryParam("seed"); v != "" {
		if _, err := fmt.Sscan(v, &cfg.Seed); err != nil {
			return cfg, fmt.Errorf("seed must be an integer")
		}
	}
	if cfg.Donors < 0 || cfg.Recipients < 0 || cfg.Doctors < 0 || cfg.Hospitals < 0 {
		return cfg, fmt.Errorf("counts must not be negative")
	}
	return cfg, nil
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, err := bindConfig(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := NewSeeder(cfg).Run(c.Request().Context(), h.users, h.hospitals)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *SeedHandler) handlePreview(c echo.Context) error {
	cfg, err := bindConfig(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	return NewSeeder(cfg).ExportNDJSON(c.Response().Writer)
}
