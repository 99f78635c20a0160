// Package apperr defines the error kinds shared by the import workflow and
// its presentation layers.
package apperr

import "errors"

var (
	ErrDuplicateModel      = errors.New("model already registered")
	ErrDestinationConflict = errors.New("destination already exists")
	ErrNotFound            = errors.New("not found")
	ErrNotADirectory       = errors.New("not a directory")
	ErrTransferFailure     = errors.New("transfer failed")
	ErrStorageFailure      = errors.New("catalog storage failure")
	ErrProtectionFailure   = errors.New("protection failed")
	ErrInvalidInput        = errors.New("invalid input")
)

// Kind is a stable, machine-readable error classification.
type Kind string

const (
	KindNone                Kind = ""
	KindDuplicateModel      Kind = "duplicate_model"
	KindDestinationConflict Kind = "destination_conflict"
	KindNotFound            Kind = "not_found"
	KindNotADirectory       Kind = "not_a_directory"
	KindTransferFailure     Kind = "transfer_failure"
	KindStorageFailure      Kind = "storage_failure"
	KindProtectionFailure   Kind = "protection_failure"
	KindInvalidInput        Kind = "invalid_input"
	KindInternal            Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrDuplicateModel, KindDuplicateModel},
	{ErrDestinationConflict, KindDestinationConflict},
	{ErrNotFound, KindNotFound},
	{ErrNotADirectory, KindNotADirectory},
	{ErrTransferFailure, KindTransferFailure},
	{ErrStorageFailure, KindStorageFailure},
	{ErrProtectionFailure, KindProtectionFailure},
	{ErrInvalidInput, KindInvalidInput},
}

// KindOf classifies err. Errors that wrap none of the sentinels are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
