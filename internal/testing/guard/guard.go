// Package guard forces test mode when blank-imported from a test file,
// keeping runtime startup paths inert under go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LNS_TEST_MODE") == "" {
			_ = os.Setenv("LNS_TEST_MODE", "1")
		}
	})
}
