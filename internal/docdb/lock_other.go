//go:build !unix && !windows

package docdb

import "os"

// No advisory locking on this platform; in-process mutexes still apply.

func lockFD(*os.File, bool) error { return nil }

func unlockFD(*os.File) error { return nil }
