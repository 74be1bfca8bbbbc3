package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Global store instance, initialized once at startup.
var (
	globalStore Store
	storeOnce   sync.Once
)

// InitializeStore initializes the global store from a GORM handle.
func InitializeStore(db *gorm.DB) {
	storeOnce.Do(func() {
		globalStore = NewStore(db)
	})
}

// GetStore returns the global store instance.
func GetStore() Store {
	if globalStore == nil {
		panic("Repository store not initialized. Call InitializeStore first.")
	}
	return globalStore
}
