package evserve

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// dropPrivileges implements §4.1 step 5: once listeners are bound
// (typically while still root, to claim ports <1024), drop to the
// configured POSIX user for the rest of the process lifetime. A no-op
// when Options.User is empty.
//
// Grounded on the raw unix.Errno-level syscall access
// bassosimone-nop/errclass/unix.go exercises for x/sys/unix — applied
// here to the package's other common production use, privilege drop in
// a long-running daemon, which the teacher itself never needed (its
// tests run unprivileged).
func dropPrivileges(name string) error {
	if name == "" {
		return nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return fmt.Errorf("evserve: lookup user %q: %w", name, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("evserve: invalid gid for user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("evserve: invalid uid for user %q: %w", name, err)
	}
	// Group first: dropping the uid first would strip the permission
	// needed to change the gid afterward.
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("evserve: setgid(%d): %w", gid, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("evserve: setuid(%d): %w", uid, err)
	}
	return nil
}
