package container

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"pvcaptest/adapters/excel"
	"pvcaptest/adapters/ols"
	"pvcaptest/adapters/pvsyst"
	"pvcaptest/adapters/store"
	"pvcaptest/internal"
	"pvcaptest/internal/config"
	"pvcaptest/internal/errors"
	"pvcaptest/ports"
)

// DefaultSQLitePath is used when the sqlite driver is selected without a URL.
const DefaultSQLitePath = "captest.db"

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	Engine ports.ModelEngine
	Store  ports.ResultStore

	log *internal.Logger
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Container{
		Config: cfg,
		Engine: ols.NewEngine(),
		log:    internal.DefaultLogger.With("Container"),
	}, nil
}

// PersistenceEnabled reports whether DATABASE_URL selects a result store.
func (c *Container) PersistenceEnabled() bool {
	return c.Config.Database.URL != ""
}

// InitStore opens the result store. Without a URL, sqlite falls back to
// DefaultSQLitePath and postgres is an error.
func (c *Container) InitStore(ctx context.Context) error {
	if c.Store != nil {
		return nil
	}
	db := c.Config.Database
	url := db.URL
	if url == "" {
		if db.Driver != config.DriverSQLite {
			return errors.ConfigInvalid("DATABASE_URL is required for " + db.Driver)
		}
		url = DefaultSQLitePath
	}
	s, err := store.Open(ctx, db.Driver, url)
	if err != nil {
		return err
	}
	c.Store = s
	c.log.Debug("result store opened (%s)", db.Driver)
	return nil
}

// Reader returns the dataset reader for ds. An empty format is chosen from
// the file extension.
func (c *Container) Reader(ds config.DatasetConfig, path string) (ports.DatasetReader, error) {
	format := ds.Format
	if format == "" {
		format = config.FormatCSV
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".xlsx" || ext == ".xlsm" {
			format = config.FormatXLSX
		}
	}
	var comma rune
	if ds.Separator != nil {
		r, size := utf8.DecodeRuneInString(*ds.Separator)
		if size == 0 || size != len(*ds.Separator) {
			return nil, errors.ConfigInvalid(fmt.Sprintf("dataset.sep must be one character, got %q", *ds.Separator))
		}
		comma = r
	}
	switch format {
	case config.FormatPVsyst:
		return pvsyst.NewReader(pvsyst.Options{Comma: comma, DayFirst: ds.DayFirst}), nil
	case config.FormatCSV, config.FormatXLSX:
		opts := excel.Options{TimeColumn: ds.TimeColumn, TimeLayout: ds.TimeLayout, Comma: comma}
		if ds.Sheet != nil {
			opts.Sheet = *ds.Sheet
		}
		return excel.NewDataReader(opts), nil
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unknown dataset format %q", format))
	}
}

// Shutdown closes the result store if one was opened.
func (c *Container) Shutdown() error {
	if c.Store != nil {
		err := c.Store.Close()
		c.Store = nil
		return err
	}
	return nil
}
