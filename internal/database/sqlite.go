package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/repository/sqlite"
)

// NewLocalStore opens the device database and applies pending migrations.
func NewLocalStore(cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	db, err := sqlite.Open(cfg.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	log.Info().Str("path", cfg.LocalDBPath).Msg("Local store ready")
	return db, nil
}
