package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseBeaconRequiresSerial(t *testing.T) {
	_, ok := parseBeacon([]byte("model=FLEX-6600 ip=10.0.0.5 port=4992"))
	require.False(t, ok)
}

func TestParseBeaconExtractsFields(t *testing.T) {
	r, ok := parseBeacon([]byte("model=FLEX-6600 serial=0123-4567 ip=10.0.0.5 port=4992 capabilities=TX,MultiFlex"))
	require.True(t, ok)
	require.Equal(t, "0123-4567", r.Serial)
	require.Equal(t, "FLEX-6600", r.Model)
	require.Equal(t, "10.0.0.5", r.IP.String())
	require.Equal(t, 4992, r.Port)
	require.Equal(t, []string{"TX", "MultiFlex"}, r.Capabilities)
}

func TestParseBeaconSkipsMalformedTokensWithoutFailing(t *testing.T) {
	r, ok := parseBeacon([]byte("serial=ABC ===broken model=FLEX-8600"))
	require.True(t, ok)
	require.Equal(t, "ABC", r.Serial)
	require.Equal(t, "FLEX-8600", r.Model)
}

// Scenario 1 (spec §8): a beacon for a new serial creates a Radio record,
// and a beacon for an already-known serial within TTL produces exactly
// one Updated notification rather than a second Added.
func TestHandleBeaconCreatesThenUpdates(t *testing.T) {
	s := New(Options{Port: 0})
	changes := s.Radios.Subscribe()
	defer s.Radios.Unsubscribe(changes)

	s.handleBeacon([]byte("model=FLEX-6600 serial=0123-4567 ip=10.0.0.5 port=4992"))
	select {
	case c := <-changes:
		require.Equal(t, 0 /* Added */, int(c.Kind))
		require.Equal(t, "0123-4567", c.Key)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Added notification")
	}

	s.handleBeacon([]byte("model=FLEX-6600 serial=0123-4567 ip=10.0.0.5 port=4992"))
	select {
	case c := <-changes:
		require.Equal(t, 1 /* Updated */, int(c.Kind))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Updated notification")
	}

	require.Equal(t, 1, s.Radios.Len())
}

func TestHandleBeaconDropsMalformedWithoutPanicking(t *testing.T) {
	s := New(Options{Port: 0})
	s.handleBeacon([]byte("not a valid beacon"))
	require.Equal(t, 0, s.Radios.Len())
}

func TestEvictStaleRemovesExpiredRadios(t *testing.T) {
	s := New(Options{Port: 0, StaleTimeout: 10 * time.Millisecond})
	s.handleBeacon([]byte("serial=ABC ip=10.0.0.1 port=4992"))
	require.Equal(t, 1, s.Radios.Len())

	s.evictStale(time.Now().Add(time.Second))
	require.Equal(t, 0, s.Radios.Len())
}

func TestEvictStaleLeavesFreshRadios(t *testing.T) {
	s := New(Options{Port: 0, StaleTimeout: time.Hour})
	s.handleBeacon([]byte("serial=ABC ip=10.0.0.1 port=4992"))
	s.evictStale(time.Now())
	require.Equal(t, 1, s.Radios.Len())
}

func TestNextBackoffGrowsAndClampsToMax(t *testing.T) {
	max := 2 * time.Second
	cur := time.Duration(0)
	for i := 0; i < 10; i++ {
		cur = nextBackoff(cur, max)
		require.LessOrEqual(t, cur, max+max/4)
	}
}
