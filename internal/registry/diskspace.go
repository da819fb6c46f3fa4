package registry

import (
	"golang.org/x/sys/unix"
)

// SpaceChecker reports the bytes free on the filesystem backing dir. The
// default, statfsFreeBytes, is swappable in tests so archival-mode disk
// checks don't depend on actual filesystem state.
type SpaceChecker func(dir string) (freeBytes int64, err error)

// statfsFreeBytes is the production SpaceChecker, backed by statfs(2).
func statfsFreeBytes(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
