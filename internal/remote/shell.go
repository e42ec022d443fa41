package remote

import (
	"fmt"
	"strconv"
)

// ShellArgs builds the argument list for handing the user an interactive
// diagnostic shell via the local ssh binary. The relay never uses this
// path; it exists for operators poking at a misbehaving instance.
func ShellArgs(t Target) []string {
	port := t.Port
	if port == 0 {
		port = 22
	}

	args := []string{
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=10",
		"-o", "LogLevel=ERROR",
		"-p", strconv.Itoa(port),
	}
	if t.KeyPath != "" {
		args = append(args, "-i", t.KeyPath)
	}
	return append(args, fmt.Sprintf("%s@%s", t.User, t.Host))
}
