package session

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsDisabledWithoutRegisterer(t *testing.T) {
	m := NewMetrics(nil, "")
	assert.NotPanics(t, func() {
		m.ProposalReceived(KindSoftphone)
		m.SessionTracked()
		m.SessionStarted(KindSoftphone)
		m.SessionEnded(KindSoftphone, ReasonLocalEnd, time.Now())
		m.Error(ErrorCodeTransportFailure)
		m.Transition(StateProposed, StateEnded)
	})
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "")

	m.SessionTracked()
	m.SessionTracked()
	m.SessionEnded(KindScreenView, ReasonRemote, time.Now().Add(-2*time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsEnded.WithLabelValues("screenView", ReasonRemote)))

	count, err := testutil.GatherAndCount(reg, "rtc_sessions_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
