// Package tickets provides the operational ticket metrics the assistant
// answers from: aggregate summaries with scope filtering and role-based
// visibility, lookup lists for the filter UI, and chart generation from a
// previously fetched summary.
package tickets

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Query narrows a ticket summary. Name filters are comma-separated lists
// matched case-insensitively as substrings, so "net" matches "Network Ops".
type Query struct {
	// Username scopes the query. Engineers see only their own tickets;
	// managers and admins see everything in scope.
	Username string

	// Projects, Teams and Regions are comma-separated name filters.
	// Empty means no filter for that dimension.
	Projects string
	Teams    string
	Regions  string

	// Month (1-12) and Year restrict by creation month. Zero means no
	// restriction. Month without Year applies to the current year.
	Month int
	Year  int

	// DateFrom and DateTo restrict by creation date, inclusive, in
	// YYYY-MM-DD form. They take precedence over Month/Year when set.
	DateFrom string
	DateTo   string

	// IncludeBreakdown adds per-region, per-project and per-team rows.
	IncludeBreakdown bool
}

// Summary is the aggregate result of a ticket metrics query.
type Summary struct {
	TotalTickets     int     `json:"TotalTickets"`
	OpenTickets      int     `json:"OpenTickets"`
	SuspendedTickets int     `json:"SuspendedTickets"`
	CompletedTickets int     `json:"CompletedTickets"`
	PendingApproval  int     `json:"PendingApproval"`
	SLABreached      int     `json:"SLABreached"`
	CompletionRate   float64 `json:"CompletionRate"`

	Username      string `json:"Username,omitempty"`
	UserRole      string `json:"UserRole,omitempty"`
	ProjectFilter string `json:"ProjectFilter,omitempty"`
	TeamFilter    string `json:"TeamFilter,omitempty"`
	RegionFilter  string `json:"RegionFilter,omitempty"`
	DateRange     string `json:"DateRange,omitempty"`

	ByRegion  []BreakdownRow `json:"ByRegion,omitempty"`
	ByProject []BreakdownRow `json:"ByProject,omitempty"`
	ByTeam    []BreakdownRow `json:"ByTeam,omitempty"`
}

// BreakdownRow is one group in a per-dimension breakdown.
type BreakdownRow struct {
	Name             string `json:"Name"`
	TotalTickets     int    `json:"TotalTickets"`
	OpenTickets      int    `json:"OpenTickets"`
	CompletedTickets int    `json:"CompletedTickets"`
}

// Lookups holds the selectable values for one filter dimension.
type Lookups struct {
	Kind   string   `json:"kind"`
	Values []string `json:"values"`
}

// Store is the narrow contract the assistant depends on for ticket metrics.
// Implementations must be safe for concurrent use.
type Store interface {
	// Summary runs an aggregate metrics query.
	Summary(ctx context.Context, q Query) (*Summary, error)
	// Lookup returns the distinct values for one dimension: "regions",
	// "projects", "teams" or "statuses".
	Lookup(ctx context.Context, kind string) (*Lookups, error)
	// Ping checks connectivity for the readiness probe.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// Ticket statuses stored in the database.
const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
	StatusSuspended = "suspended"
	StatusPending   = "pending"
)

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tickets: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
    username   TEXT PRIMARY KEY,
    role       TEXT NOT NULL DEFAULT 'Engineer'
);
CREATE TABLE IF NOT EXISTS tickets (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    assignee     TEXT    NOT NULL,
    project      TEXT    NOT NULL,
    team         TEXT    NOT NULL,
    region       TEXT    NOT NULL,
    status       TEXT    NOT NULL CHECK(status IN ('open','completed','suspended','pending')),
    sla_breached INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_tickets_assignee ON tickets (assignee);
CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("tickets: migrate: %w", err)
	}
	return nil
}

// Ticket is one row for seeding and tests.
type Ticket struct {
	Assignee    string
	Project     string
	Team        string
	Region      string
	Status      string
	SLABreached bool
	CreatedAt   time.Time
}

// Insert adds a single ticket.
func (s *SQLiteStore) Insert(ctx context.Context, t Ticket) error {
	const q = `INSERT INTO tickets (assignee, project, team, region, status, sla_breached, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	breached := 0
	if t.SLABreached {
		breached = 1
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if _, err := s.db.ExecContext(ctx, q, t.Assignee, t.Project, t.Team, t.Region, t.Status, breached, created.Unix()); err != nil {
		return fmt.Errorf("tickets: insert: %w", err)
	}
	return nil
}

// AddUser registers a user with a role: "Engineer", "Manager" or "Admin".
func (s *SQLiteStore) AddUser(ctx context.Context, username, role string) error {
	const q = `INSERT INTO users (username, role) VALUES (?, ?)
ON CONFLICT(username) DO UPDATE SET role = excluded.role`
	if _, err := s.db.ExecContext(ctx, q, username, role); err != nil {
		return fmt.Errorf("tickets: add user: %w", err)
	}
	return nil
}

// userRole resolves the role for username. Unknown users default to
// Engineer, the most restrictive role.
func (s *SQLiteStore) userRole(ctx context.Context, username string) (string, error) {
	const q = `SELECT role FROM users WHERE username = ?`
	var role string
	err := s.db.QueryRowContext(ctx, q, username).Scan(&role)
	if err == sql.ErrNoRows {
		return "Engineer", nil
	}
	if err != nil {
		return "", fmt.Errorf("tickets: user role: %w", err)
	}
	return role, nil
}

// Summary runs an aggregate metrics query with scope filters and role-based
// visibility applied.
func (s *SQLiteStore) Summary(ctx context.Context, q Query) (*Summary, error) {
	role, err := s.userRole(ctx, q.Username)
	if err != nil {
		return nil, err
	}

	where, args := s.buildWhere(q, role)

	const counts = `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status = 'open'      THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN status = 'suspended' THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN status = 'pending'   THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(sla_breached), 0)
FROM tickets `

	sum := &Summary{
		Username:      q.Username,
		UserRole:      role,
		ProjectFilter: q.Projects,
		TeamFilter:    q.Teams,
		RegionFilter:  q.Regions,
		DateRange:     s.describeRange(q),
	}
	row := s.db.QueryRowContext(ctx, counts+where, args...)
	if err := row.Scan(&sum.TotalTickets, &sum.OpenTickets, &sum.SuspendedTickets,
		&sum.CompletedTickets, &sum.PendingApproval, &sum.SLABreached); err != nil {
		return nil, fmt.Errorf("tickets: summary: %w", err)
	}
	if sum.TotalTickets > 0 {
		rate := float64(sum.CompletedTickets) / float64(sum.TotalTickets) * 100
		sum.CompletionRate = math.Round(rate*100) / 100
	}

	if q.IncludeBreakdown {
		for _, dim := range []struct {
			column string
			dest   *[]BreakdownRow
		}{
			{"region", &sum.ByRegion},
			{"project", &sum.ByProject},
			{"team", &sum.ByTeam},
		} {
			rows, err := s.breakdown(ctx, dim.column, where, args)
			if err != nil {
				return nil, err
			}
			*dim.dest = rows
		}
	}
	return sum, nil
}

func (s *SQLiteStore) breakdown(ctx context.Context, column, where string, args []any) ([]BreakdownRow, error) {
	// column is one of the fixed dimension names above, never user input.
	q := fmt.Sprintf(`
SELECT %s,
       COUNT(*),
       COALESCE(SUM(CASE WHEN status = 'open'      THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
FROM tickets %s
GROUP BY %s
ORDER BY COUNT(*) DESC, %s ASC`, column, where, column, column)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("tickets: breakdown by %s: %w", column, err)
	}
	defer rows.Close()

	var out []BreakdownRow
	for rows.Next() {
		var r BreakdownRow
		if err := rows.Scan(&r.Name, &r.TotalTickets, &r.OpenTickets, &r.CompletedTickets); err != nil {
			return nil, fmt.Errorf("tickets: breakdown scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tickets: breakdown rows: %w", err)
	}
	return out, nil
}

// buildWhere assembles the WHERE clause for a query. Name filters are split
// on commas and matched case-insensitively as substrings, OR-joined within a
// dimension and AND-joined across dimensions.
func (s *SQLiteStore) buildWhere(q Query, role string) (string, []any) {
	var clauses []string
	var args []any

	if strings.EqualFold(role, "Engineer") && q.Username != "" {
		clauses = append(clauses, "assignee = ?")
		args = append(args, q.Username)
	}

	for _, dim := range []struct {
		column string
		names  string
	}{
		{"project", q.Projects},
		{"team", q.Teams},
		{"region", q.Regions},
	} {
		clause, a := nameFilter(dim.column, dim.names)
		if clause != "" {
			clauses = append(clauses, clause)
			args = append(args, a...)
		}
	}

	switch {
	case q.DateFrom != "" || q.DateTo != "":
		if q.DateFrom != "" {
			clauses = append(clauses, "date(created_at, 'unixepoch') >= date(?)")
			args = append(args, q.DateFrom)
		}
		if q.DateTo != "" {
			clauses = append(clauses, "date(created_at, 'unixepoch') <= date(?)")
			args = append(args, q.DateTo)
		}
	case q.Month != 0:
		year := q.Year
		if year == 0 {
			year = s.now().Year()
		}
		clauses = append(clauses, "CAST(strftime('%m', created_at, 'unixepoch') AS INTEGER) = ?")
		clauses = append(clauses, "CAST(strftime('%Y', created_at, 'unixepoch') AS INTEGER) = ?")
		args = append(args, q.Month, year)
	case q.Year != 0:
		clauses = append(clauses, "CAST(strftime('%Y', created_at, 'unixepoch') AS INTEGER) = ?")
		args = append(args, q.Year)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func nameFilter(column, names string) (string, []any) {
	var parts []string
	var args []any
	for _, n := range strings.Split(names, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE '%%' || LOWER(?) || '%%'", column))
		args = append(args, n)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func (s *SQLiteStore) describeRange(q Query) string {
	switch {
	case q.DateFrom != "" && q.DateTo != "":
		return q.DateFrom + " to " + q.DateTo
	case q.DateFrom != "":
		return "from " + q.DateFrom
	case q.DateTo != "":
		return "until " + q.DateTo
	case q.Month != 0:
		year := q.Year
		if year == 0 {
			year = s.now().Year()
		}
		return fmt.Sprintf("%s %d", time.Month(q.Month), year)
	case q.Year != 0:
		return fmt.Sprintf("%d", q.Year)
	default:
		return "all time"
	}
}

// Lookup returns the distinct values for one filter dimension.
func (s *SQLiteStore) Lookup(ctx context.Context, kind string) (*Lookups, error) {
	var column string
	switch strings.ToLower(kind) {
	case "regions":
		column = "region"
	case "projects":
		column = "project"
	case "teams":
		column = "team"
	case "statuses":
		return &Lookups{Kind: "statuses", Values: []string{StatusOpen, StatusCompleted, StatusSuspended, StatusPending}}, nil
	default:
		return nil, fmt.Errorf("tickets: unknown lookup kind %q — valid values: regions, projects, teams, statuses", kind)
	}

	// column is validated against the fixed set above.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM tickets ORDER BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("tickets: lookup %s: %w", kind, err)
	}
	defer rows.Close()

	out := &Lookups{Kind: strings.ToLower(kind)}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("tickets: lookup scan: %w", err)
		}
		out.Values = append(out.Values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tickets: lookup rows: %w", err)
	}
	return out, nil
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("tickets: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("tickets: close: %w", err)
	}
	return nil
}
