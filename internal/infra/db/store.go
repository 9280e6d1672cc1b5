package db

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	DB *gorm.DB
}

// NewStore opens postgres when dsn is set. An empty dsn yields a store with a
// nil DB and the caller falls back to in-memory repositories.
func NewStore(dsn string, log zerolog.Logger) (*Store, error) {
	if dsn == "" {
		log.Info().Msg("POSTGRES_DSN not set; starting in no-db mode")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb}, nil
}

func (s *Store) Enabled() bool {
	return s != nil && s.DB != nil
}

func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate creates missing tables for development setups. Production
// schemas come from the SQL files under migrations/.
func (s *Store) AutoMigrate() error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	return s.DB.AutoMigrate(&LedgerEntryModel{}, &MarketPolicyModel{}, &RoleGrantModel{})
}
