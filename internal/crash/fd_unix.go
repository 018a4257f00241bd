//go:build linux || darwin

package crash

import (
	"golang.org/x/sys/unix"
)

// writeDiag writes directly to fd 2, bypassing buffered writers.
func writeDiag(msg string) {
	_, _ = unix.Write(2, []byte(msg))
}
