package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestFlowOutcomesCounter(t *testing.T) {
	before := testutil.ToFloat64(FlowOutcomes.WithLabelValues("logout", "accepted"))
	FlowOutcomes.WithLabelValues("logout", "accepted").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FlowOutcomes.WithLabelValues("logout", "accepted")))
}
