//go:build !unix

package backend

import "os"

// Without flock the per-record files rely on the store's in-process
// serialization and on atomic rename alone.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }

func isSyncUnsupported(error) bool { return true }
