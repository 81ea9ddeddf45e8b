package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/storage/badger"
	"github.com/hugorneri/RPA-DCTFWEB/internal/storage/xlsx"
)

// NewStorageManager opens the run history store
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	if config.Storage.Badger.Path == "" {
		return nil, fmt.Errorf("storage.badger.path is required")
	}
	return badger.NewManager(logger, &config.Storage.Badger)
}

// NewRowStore opens the entity workbook named in config
func NewRowStore(logger arbor.ILogger, config *common.Config) interfaces.RowStore {
	return xlsx.NewRowStore(config.Storage.Workbook, config.Storage.Sheet, logger)
}
