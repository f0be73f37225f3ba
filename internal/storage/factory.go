// File: internal/storage/factory.go
package storage

import (
	"strings"

	"github.com/fullduplex/carrierwave/pkg/utils"
)

// NewStorage creates a storage instance based on the configured type
func NewStorage(config *StorageConfig) (Storage, error) {
	if config == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Storage configuration is required", "")
	}

	if config.MaxConnections <= 0 {
		config.MaxConnections = 10
	}

	switch strings.ToLower(config.Type) {
	case "sqlite", "":
		return NewSQLiteStorage(config), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStorage(config), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported storage type", config.Type)
	}
}
