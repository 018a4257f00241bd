//go:build windows

package crash

import (
	"os"
)

// writeDiag writes to stderr. Windows has no raw-fd equivalent worth the
// ceremony here.
func writeDiag(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}
