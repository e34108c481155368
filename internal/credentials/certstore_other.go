//go:build !windows

package credentials

import (
	"fmt"
	"runtime"
)

func exportCertFromStore(string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("%w (running on %s)", ErrCertStoreUnsupported, runtime.GOOS)
}
