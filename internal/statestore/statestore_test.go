package statestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"binaryengine/internal/domain"
)

func TestOpen_SeedsFromVenueCashWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, DefaultThresholds(), func() (float64, error) { return 123.45, nil })
	require.NoError(t, err)

	snap := store.Snapshot()
	require.Equal(t, 123.45, snap.CurrentBalance)
	require.Equal(t, 123.45, snap.PeakBalance)
}

func TestUpdate_IsAtomicAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, DefaultThresholds(), func() (float64, error) { return 100, nil })
	require.NoError(t, err)

	_, err = store.Update(func(s domain.TradingState) domain.TradingState {
		s.CurrentBalance = 150
		return s
	})
	require.NoError(t, err)

	reopened, err := Open(path, DefaultThresholds(), func() (float64, error) { return 999, nil })
	require.NoError(t, err)
	require.Equal(t, 150.0, reopened.Snapshot().CurrentBalance)
}

func TestPeakBalance_MonotoneAcrossUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, DefaultThresholds(), func() (float64, error) { return 100, nil })
	require.NoError(t, err)

	_, err = store.ApplyCashIncrease(50)
	require.NoError(t, err)
	require.Equal(t, 150.0, store.Snapshot().PeakBalance)

	_, err = store.ApplyCashDecrease(80)
	require.NoError(t, err)
	require.Equal(t, 150.0, store.Snapshot().PeakBalance, "peak must not drop on a cash decrease")
}

func TestReconcile_Scenario4Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, DefaultThresholds(), func() (float64, error) { return 14.91, nil })
	require.NoError(t, err)
	peakBefore := store.Snapshot().PeakBalance

	err = store.Reconcile(200.97)
	require.NoError(t, err)
	require.Equal(t, 200.97, store.Snapshot().CurrentBalance)
	require.Equal(t, peakBefore, store.Snapshot().PeakBalance, "peak must not move from reconciliation alone")
}

func TestUpdate_NegativeBalanceForcesHalt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, DefaultThresholds(), func() (float64, error) { return 10, nil })
	require.NoError(t, err)

	_, err = store.Update(func(s domain.TradingState) domain.TradingState {
		s.CurrentBalance = -5
		return s
	})
	require.NoError(t, err)

	snap := store.Snapshot()
	require.Equal(t, domain.ModeHalted, snap.Mode)
	require.Equal(t, "negative-balance", snap.HaltReason)
}

func TestReconcile_NegativeVenueCashForcesHalt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, DefaultThresholds(), func() (float64, error) { return 100, nil })
	require.NoError(t, err)

	err = store.Reconcile(-1.5)
	require.Error(t, err)

	snap := store.Snapshot()
	require.Equal(t, domain.ModeHalted, snap.Mode)
	require.Equal(t, "negative-balance", snap.HaltReason)
	require.Equal(t, -1.5, snap.CurrentBalance)
}

func TestReconcile_SmallDriftIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, DefaultThresholds(), func() (float64, error) { return 100, nil })
	require.NoError(t, err)

	err = store.Reconcile(100.5)
	require.NoError(t, err)
	require.Equal(t, 100.0, store.Snapshot().CurrentBalance)
}
