package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"procodus.dev/weather-cache/pkg/metrics"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// StoreConfig holds the configuration for the Store.
type StoreConfig struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.WeatherMetrics
}

// Store persists cities, conditions and readings. It is the only shared
// mutable state of the cache.
type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.WeatherMetrics
}

// NewStore creates a new Store.
func NewStore(cfg *StoreConfig) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Store{
		db:      cfg.DB,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// withTx returns a Store bound to tx.
func (s *Store) withTx(tx *gorm.DB) *Store {
	clone := *s
	clone.db = tx
	return &clone
}

// Migrate creates or updates the five cache tables and their indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// FindCityByName looks a city up case-insensitively. It returns nil, nil when
// the city is unknown.
func (s *Store) FindCityByName(ctx context.Context, name string) (*City, error) {
	var city City
	err := s.db.WithContext(ctx).Where("name_key = ?", foldKey(name)).Take(&city).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find city", Err: err}
	}
	return &city, nil
}

// FindFreshReading returns the most recent reading for cityID observed strictly
// after windowStart (epoch seconds), with City, Condition, Winds and Suns loaded.
// It returns nil, nil when there is none.
func (s *Store) FindFreshReading(ctx context.Context, cityID uint, windowStart int64) (*CurrentReading, error) {
	var reading CurrentReading
	err := s.db.WithContext(ctx).
		Preload("City").
		Preload("Condition").
		Preload("Winds").
		Preload("Suns").
		Where("city_id = ? AND observed_at > ?", cityID, windowStart).
		Order("observed_at DESC").
		Order("id DESC").
		Take(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find fresh reading", Err: err}
	}
	return &reading, nil
}

// FindOrCreateCity returns the city with the given name, creating it when absent.
// Country code and UTC offset are only recorded on creation.
func (s *Store) FindOrCreateCity(ctx context.Context, name string, countryCode *string, utcOffset *int) (*City, error) {
	name = strings.TrimSpace(name)
	key := foldKey(name)

	lookup := func(db *gorm.DB) (*City, error) {
		var city City
		err := db.Where("name_key = ?", key).Take(&city).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return &city, err
	}

	city := &City{
		Name:        name,
		NameKey:     key,
		CountryCode: countryCode,
		UTCOffset:   utcOffset,
	}
	found, err := findOrCreateRow(ctx, s, city, lookup)
	if err != nil {
		return nil, &PersistenceError{Op: "find or create city", Err: err}
	}
	return found, nil
}

// FindOrCreateCondition returns the condition matching main and description
// case-insensitively, creating it when absent. Icon is not part of the match.
func (s *Store) FindOrCreateCondition(ctx context.Context, main, description, icon string) (*Condition, error) {
	mainKey, descKey := foldKey(main), foldKey(description)

	lookup := func(db *gorm.DB) (*Condition, error) {
		var cond Condition
		err := db.Where("main_key = ? AND description_key = ?", mainKey, descKey).Take(&cond).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return &cond, err
	}

	cond := &Condition{
		Main:           main,
		Description:    description,
		Icon:           icon,
		MainKey:        mainKey,
		DescriptionKey: descKey,
	}
	found, err := findOrCreateRow(ctx, s, cond, lookup)
	if err != nil {
		return nil, &PersistenceError{Op: "find or create condition", Err: err}
	}
	return found, nil
}

// findOrCreateRow reads, inserts ignoring a unique-key conflict, then reads again.
// The unique index decides the winner when callers race.
func findOrCreateRow[T any](ctx context.Context, s *Store, row *T, lookup func(*gorm.DB) (*T, error)) (*T, error) {
	db := s.db.WithContext(ctx)

	if found, err := lookup(db); err != nil || found != nil {
		return found, err
	}

	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	if err != nil && !isDuplicateKey(err) {
		return nil, err
	}

	// The reread must see rows committed by a concurrent winner, so it is a
	// locking read where the dialect supports one.
	found, err := lookup(s.latest(db))
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.New("row missing after insert")
	}
	return found, nil
}

// latest adds a shared row lock to reads so that, inside a repeatable-read
// transaction, they observe rows committed after the transaction began.
// SQLite serializes writers and has no row locks.
func (s *Store) latest(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthShare})
}

// SaveReading inserts a reading with its wind and sun rows in one transaction.
// Any failure rolls all three back.
func (s *Store) SaveReading(ctx context.Context, cityID, conditionID uint, fields ReadingFields, wind WindFields, sun SunFields) (*CurrentReading, error) {
	reading := &CurrentReading{
		CityID:         cityID,
		ConditionID:    conditionID,
		Temperature:    fields.Temperature,
		TemperatureMin: fields.TemperatureMin,
		TemperatureMax: fields.TemperatureMax,
		FeelsLike:      fields.FeelsLike,
		Pressure:       fields.Pressure,
		Humidity:       fields.Humidity,
		Cloudiness:     fields.Cloudiness,
		Visibility:     fields.Visibility,
		ObservedAt:     fields.ObservedAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(reading).Error; err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}

		w := Wind{ReadingID: reading.ID, Speed: wind.Speed, Deg: wind.Deg, Gust: wind.Gust}
		if err := tx.Create(&w).Error; err != nil {
			return fmt.Errorf("failed to insert wind: %w", err)
		}

		sn := Sun{ReadingID: reading.ID, Sunrise: sun.Sunrise, Sunset: sun.Sunset}
		if err := tx.Create(&sn).Error; err != nil {
			return fmt.Errorf("failed to insert sun: %w", err)
		}

		reading.Winds = []Wind{w}
		reading.Suns = []Sun{sn}
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "save reading", Err: err}
	}
	return reading, nil
}

// Persist commits one decomposed upstream payload: city and condition
// find-or-create plus the reading, its wind and its sun, in a single transaction.
// Nested calls join it through savepoints.
func (s *Store) Persist(ctx context.Context, d *Decomposed) (*CurrentReading, error) {
	if d == nil {
		return nil, &PersistenceError{Op: "persist", Err: errors.New("decomposed payload cannot be nil")}
	}

	start := time.Now()
	var saved *CurrentReading

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := s.withTx(tx)

		city, err := txStore.FindOrCreateCity(ctx, d.City.Name, d.City.CountryCode, d.City.UTCOffset)
		if err != nil {
			return err
		}

		cond, err := txStore.FindOrCreateCondition(ctx, d.Condition.Main, d.Condition.Description, d.Condition.Icon)
		if err != nil {
			return err
		}

		reading, err := txStore.SaveReading(ctx, city.ID, cond.ID, d.Reading, d.Wind, d.Sun)
		if err != nil {
			return err
		}

		reading.City = city
		reading.Condition = cond
		saved = reading
		return nil
	})

	if s.metrics != nil {
		s.metrics.PersistOperations.WithLabelValues(metrics.StatusLabel(err)).Inc()
		metrics.Since(s.metrics.PersistDuration, start)
	}

	if err != nil {
		s.logger.Error("failed to persist reading", "city", d.City.Name, "error", err)
		var persistErr *PersistenceError
		if errors.As(err, &persistErr) {
			return nil, persistErr
		}
		return nil, &PersistenceError{Op: "persist", Err: err}
	}

	if s.metrics != nil {
		s.metrics.ReadingsStored.Inc()
	}
	s.logger.Debug("reading persisted",
		"city", saved.City.Name,
		"reading_id", saved.ID,
		"observed_at", saved.ObservedAt,
	)
	return saved, nil
}

// isDuplicateKey reports whether err is a unique-constraint violation. Dialect
// errors are translated by gorm (TranslateError); a raw pgx error is matched on
// its SQLSTATE.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
