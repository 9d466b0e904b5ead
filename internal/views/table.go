package views

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/quake-watch/internal/domain"
)

// TableColumns are the column headers, in row order.
var TableColumns = []string{
	"Date", "Location", "Magnitude", "Depth (km)", "Nearest City",
	"City Code", "City Distance (km)", "City Population",
	"Epicenter", "Airports", "Airport Distances (km)",
}

// TableRow is one formatted table line. It also keeps the source record so a
// selection can be raised from it.
type TableRow struct {
	ID               string   `json:"id"`
	Date             string   `json:"date"`
	Location         string   `json:"location"`
	Magnitude        string   `json:"magnitude"`
	DepthKm          string   `json:"depth_km"`
	NearestCity      string   `json:"nearest_city"`
	CityCode         string   `json:"city_code"`
	CityDistanceKm   string   `json:"city_distance_km"`
	CityPopulation   string   `json:"city_population"`
	Epicenter        string   `json:"epicenter"`
	Airports         []string `json:"airports"`
	AirportDistances []string `json:"airport_distances_km"`

	Quake domain.Earthquake `json:"-"`
}

// Cells returns the row as strings matching TableColumns. Multi-value cells
// are newline-joined, with "-" for none.
func (r TableRow) Cells() []string {
	return []string{
		r.Date, r.Location, r.Magnitude, r.DepthKm, r.NearestCity,
		r.CityCode, r.CityDistanceKm, r.CityPopulation, r.Epicenter,
		joinOrDash(r.Airports), joinOrDash(r.AirportDistances),
	}
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, "\n")
}

// FormatRow renders one record the way the table shows it.
func FormatRow(eq domain.Earthquake) TableRow {
	row := TableRow{
		ID:               eq.ID,
		Date:             eq.OccurredAt,
		Location:         eq.Title,
		Magnitude:        strconv.FormatFloat(eq.Magnitude, 'f', 1, 64),
		DepthKm:          strconv.FormatFloat(eq.DepthKm, 'f', 1, 64),
		CityDistanceKm:   "0.0",
		Epicenter:        eq.Epicenter(),
		Airports:         make([]string, 0, len(eq.Airports)),
		AirportDistances: make([]string, 0, len(eq.Airports)),
		Quake:            eq,
	}
	if c := eq.NearestCity; c != nil {
		row.NearestCity = c.Name
		row.CityCode = strconv.Itoa(c.Code)
		row.CityDistanceKm = strconv.FormatFloat(c.DistanceMeters/1000, 'f', 1, 64)
		row.CityPopulation = strconv.FormatInt(c.Population, 10)
	}
	for _, a := range eq.Airports {
		row.Airports = append(row.Airports, a.Name)
		row.AirportDistances = append(row.AirportDistances, strconv.Itoa(int(a.DistanceMeters/1000)))
	}
	return row
}

// matches reports whether any cell contains q, ignoring case.
func (r TableRow) matches(q string) bool {
	for _, cell := range r.Cells() {
		if strings.Contains(strings.ToLower(cell), q) {
			return true
		}
	}
	return false
}

// Table is the tabular view of the distributed records.
type Table struct {
	mu   sync.RWMutex
	rows []TableRow
	bus  *SelectionBus
}

// NewTable creates a table that publishes row selections to bus.
func NewTable(bus *SelectionBus) *Table {
	return &Table{bus: bus}
}

func (t *Table) Name() string { return "table" }

func (t *Table) Receive(_ context.Context, quakes []domain.Earthquake) error {
	rows := make([]TableRow, len(quakes))
	for i := range quakes {
		rows[i] = FormatRow(quakes[i])
	}
	t.mu.Lock()
	t.rows = rows
	t.mu.Unlock()
	return nil
}

// Rows returns the rows whose cells contain query, case-insensitively.
// An empty query returns every row.
func (t *Table) Rows(query string) []TableRow {
	t.mu.RLock()
	defer t.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]TableRow, 0, len(t.rows))
	for _, r := range t.rows {
		if q == "" || r.matches(q) {
			out = append(out, r)
		}
	}
	return out
}

// Select publishes the record with the given ID as a selection.
func (t *Table) Select(id string) (Selection, error) {
	t.mu.RLock()
	var (
		found bool
		eq    domain.Earthquake
	)
	for _, r := range t.rows {
		if r.Quake.ID == id {
			eq, found = r.Quake, true
			break
		}
	}
	t.mu.RUnlock()

	if !found {
		return Selection{}, fmt.Errorf("earthquake %q is not in the table", id)
	}
	sel := Selection{Lat: eq.Latitude, Lon: eq.Longitude, Magnitude: eq.Magnitude, Title: eq.Title}
	if t.bus != nil {
		t.bus.Publish(sel)
	}
	return sel, nil
}
