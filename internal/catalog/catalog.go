package catalog

import "github.com/starford/modelhub/internal/models"

// Catalog defines the model catalog operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Catalog interface {
	Initialize() error
	Insert(name string, source models.Source, origin, path string) (*models.Model, error)
	Exists(name, origin string) (bool, error)
	Delete(name string) (int64, error)
	List() ([]models.Model, error)

	Reserve(name string, source models.Source, origin, path string) (*models.Model, error)
	Commit(id int64) (*models.Model, error)
	Release(id int64) error
	Get(name string) (*models.Model, error)
	ListAll() ([]models.Model, error)

	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
