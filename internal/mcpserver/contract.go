package mcpserver

// ImportRules describes how models are named, imported and stored, so LLM
// consumers can pick arguments for the import tools.
const ImportRules = `# Modelhub Import Rules

Every model lives in its own directory directly under the shared models
directory and is recorded in the catalog with its name, source and origin.

## Names

- A name is a single directory name of at most 255 bytes. It must not be
  ` + "`.`" + ` or ` + "`..`" + ` and must not contain ` + "`/`" + `, ` + "`\\`" + ` or a NUL byte. Spaces and
  non-ASCII letters are allowed.
- ` + "`clone_model`" + ` derives the name from the last URL segment without ` + "`.git`" + `
  (` + "`https://github.com/octocat/Hello-World.git`" + ` becomes ` + "`Hello-World`" + `).
- ` + "`copy_local_model`" + ` defaults to the final component of the source path.

## Uniqueness

An import is refused with ` + "`duplicate_model`" + ` when any catalogued model already
has the same name OR the same origin (URL or absolute source path). If the
destination directory exists without a catalog record the import is refused
with ` + "`destination_conflict`" + ` and the directory is left untouched.

## Protection

After a successful import every directory becomes read-only (0555) and every
file read-only (0444). Symlinks in a local source are followed and their
targets copied, so nothing inside a model points back outside it. Imported models must never be edited in place; import
a new version under a new name instead.

## Failures

A failed clone or copy removes the partial directory and releases the name, so
the same request can be retried. Errors are reported as ` + "`<kind>: <message>`" + ` where
kind is one of duplicate_model, destination_conflict, not_found,
not_a_directory, transfer_failure, storage_failure, protection_failure,
invalid_input or internal.
`
