// Package guard forces test mode for binaries imported by tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FISCAL_TEST_MODE") == "" {
			_ = os.Setenv("FISCAL_TEST_MODE", "1")
		}
	})
}
