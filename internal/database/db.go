package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config contains database connection options.
type Config struct {
	Driver   string
	Path     string // sqlite file; blank or ":memory:" opens a private in-memory store
	DSN      string // overrides every other field when set
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string
}

type dialectorFunc func(Config) (gorm.Dialector, error)

var dialectors = map[string]dialectorFunc{
	"sqlite":     sqliteDialector,
	"postgres":   postgresDialector,
	"postgresql": postgresDialector,
	"mysql":      mysqlDialector,
	"mariadb":    mysqlDialector,
}

// Open connects to the configured driver. Every connection stamps timestamps in UTC.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	build, ok := dialectors[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	dialector, err := build(cfg)
	if err != nil {
		return nil, err
	}

	gcfg := &gorm.Config{NowFunc: nowUTC}
	if driver == "sqlite" {
		gcfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		if err := enableForeignKeys(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// AutoMigrateAndSeed prepares the schema and reference data at start-up.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}
	return nil
}

// mergedOptions overlays user options on driver defaults and returns the keys in order.
func mergedOptions(defaults, overrides map[string]string) (map[string]string, []string) {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return merged, keys
}

// nowUTC keeps driver-managed timestamps comparable with the UTC values the services write.
func nowUTC() time.Time {
	return time.Now().UTC()
}
