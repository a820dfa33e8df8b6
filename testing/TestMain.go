// Package testing flips the process into test mode when imported for side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func enableTestMode() {
	once.Do(func() {
		_ = os.Setenv("BILLDESK_TEST_MODE", "1")
		for key, value := range map[string]string{
			"GOTENBERG_URL":  "http://127.0.0.1:0",
			"SESSION_SECRET": "test-session-secret",
			"CSRF_SECRET":    "test-csrf-secret",
		} {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	enableTestMode()
}

// TestMain can be reused by packages that want test mode before any test runs.
func TestMain(m *stdtesting.M) {
	enableTestMode()
	os.Exit(m.Run())
}
