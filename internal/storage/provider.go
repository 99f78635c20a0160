// Package storage defines the shared-directory layout that holds imported models.
package storage

// Provider is the interface for shared-directory operations.
type Provider interface {
	// Root returns the absolute path of the shared directory.
	Root() string
	// Target resolves name to its absolute destination under the root.
	Target(name string) (string, error)
	// Claim atomically creates an empty directory for name, failing if one exists.
	Claim(name string) (string, error)
	// Remove releases protection on name's target and deletes it.
	Remove(name string) error
	// Entries returns the names of the top-level entries under the root.
	Entries() ([]string, error)
}
