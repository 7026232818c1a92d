// Package assignment implements the task allocation and review state machine:
// handing out tasks to workers, taking their reports, recording admin
// verdicts and reclaiming tasks after rejection or abandonment.
//
// Every operation runs as one transaction against the shared store. Races
// between workers and between admins are settled by the store itself: a
// unique index over live assignments per task, row locks, and updates guarded
// by the expected status.
package assignment

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMaxSubmitted = 1
	defaultRetention    = 24 * time.Hour
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	// MaxSubmitted caps how many SUBMITTED assignments a worker may have
	// waiting for review before getting another task.
	MaxSubmitted int
	// Location defines the local day used by ArchiveRejected.
	Location *time.Location
	// Retention is how long an ASSIGNED assignment may sit without a report
	// before PurgeUnsubmitted removes it.
	Retention time.Duration
	Now       func() time.Time
	// Intn picks the index of the task to hand out; defaults to a uniform
	// random choice.
	Intn func(n int) int
}

type Service struct {
	db           *gorm.DB
	maxSubmitted int
	loc          *time.Location
	retention    time.Duration
	now          func() time.Time
	intn         func(n int) int
}

func New(db *gorm.DB, opts Options) *Service {
	s := &Service{
		db:           db,
		maxSubmitted: opts.MaxSubmitted,
		loc:          opts.Location,
		retention:    opts.Retention,
		now:          opts.Now,
		intn:         opts.Intn,
	}
	if s.maxSubmitted < 1 {
		s.maxSubmitted = defaultMaxSubmitted
	}
	if s.loc == nil {
		s.loc = time.FixedZone("UTC+3", 3*3600)
	}
	if s.retention <= 0 {
		s.retention = defaultRetention
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.intn == nil {
		s.intn = rand.IntN
	}
	return s
}

// Location returns the zone used for day boundaries.
func (s *Service) Location() *time.Location { return s.loc }

// DayStart returns midnight of the current local day.
func (s *Service) DayStart() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// forUpdate adds a row lock to the next query. SQLite has no row locks and
// serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
