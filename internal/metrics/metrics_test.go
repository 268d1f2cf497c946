package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncRequest("DRAFT")
	m.IncRequest("DRAFT")
	m.IncOutcome("DRAFT", "APPROVED")
	m.CertificateIssued("MDI", 42)
	m.IncMutation("create")
	m.IncPostCommitFailure("events")
	m.Observe("approve", time.Now(), nil)
	m.Observe("approve", time.Now(), errors.New("x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ApprovalRequests.WithLabelValues("DRAFT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ApprovalOutcomes.WithLabelValues("DRAFT", "APPROVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CertificatesIssued))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.CertifiedWorkingCap.WithLabelValues("MDI")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostCommitFailures.WithLabelValues("events")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.OperationDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncRequest("DRAFT")
	m.IncOutcome("DRAFT", "APPROVED")
	m.CertificateIssued("MDI", 1)
	m.IncMutation("create")
	m.IncPostCommitFailure("audit")
	m.Observe("approve", time.Now(), nil)
}
