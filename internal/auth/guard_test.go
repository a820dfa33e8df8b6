package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGuardEvaluate(t *testing.T) {
	g := Guard{IdleTimeout: 30 * time.Minute}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)

	cases := []struct {
		name     string
		last     time.Time
		expires  time.Time
		expected Verdict
	}{
		{"fresh activity", now.Add(-time.Minute), expires, Active},
		{"idle window elapsed", now.Add(-30 * time.Minute), expires, IdleExpired},
		{"token past expiry", now.Add(-time.Minute), now, TokenExpired},
		{"expiry wins over idle", now.Add(-time.Hour), now.Add(-time.Second), TokenExpired},
		{"no token", now, time.Time{}, TokenExpired},
		{"never active", time.Time{}, expires, IdleExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := g.Evaluate(now, tc.last, tc.expires)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestVerdictState(t *testing.T) {
	require.Equal(t, StateLoggedIn, Active.State())
	require.Equal(t, StateLoggedOut, IdleExpired.State())
	require.Equal(t, StateLoggedOut, TokenExpired.State())
	require.Equal(t, "idle_expired", IdleExpired.String())
}
