package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles every repository over one database handle.
type Repositories struct {
	Account        AccountRepository
	Mention        MentionRepository
	GeneratedImage GeneratedImageRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:        NewAccountRepository(db),
		Mention:        NewMentionRepository(db),
		GeneratedImage: NewGeneratedImageRepository(db),
	}
}

var (
	global     *Repositories
	globalOnce sync.Once
)

// InitializeFactory builds the process-wide repositories. Later calls are
// ignored so the server and its background jobs share one set.
func InitializeFactory(db *gorm.DB) {
	globalOnce.Do(func() {
		global = NewRepositories(db)
	})
}

// GetGlobalRepositories panics when InitializeFactory was not called.
func GetGlobalRepositories() *Repositories {
	if global == nil {
		panic("repositories not initialized, call InitializeFactory first")
	}
	return global
}
