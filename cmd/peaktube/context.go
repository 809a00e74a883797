package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/artur/peaktube/internal/config"
	"github.com/artur/peaktube/internal/database"
	"github.com/artur/peaktube/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	loader     *config.Loader
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.loader = config.NewLoader(path)
		cfg, err := c.loader.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if err := logging.Setup(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// openDatabase opens and migrates the configured database.
func (c *commandContext) openDatabase() (*database.DB, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
