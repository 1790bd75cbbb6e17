package main

import (
	"fmt"
	"os/user"
	"strconv"
)

// resolveUser resolves a username or numeric UID into its UID and GID.
// A bare numeric UID is also used as the GID.
func resolveUser(name string) (uint32, uint32, error) {
	if uidNum, err := strconv.ParseUint(name, 10, 32); err == nil {
		uid := uint32(uidNum)

		return uid, uid, nil
	}

	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, fmt.Errorf("lookup user %q failed: %w", name, err)
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid uid %q: %w", u.Uid, err)
	}

	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid gid %q: %w", u.Gid, err)
	}

	return uint32(uid), uint32(gid), nil
}
