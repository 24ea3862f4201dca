package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/mocks"
)

func TestATG_GeneratesTransactions(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()
	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	atg := NewATG(st, domain.ATGOptions{
		Enable:                         true,
		MinDuration:                    0.05,
		MaxDuration:                    0.1,
		MinDelayBetweenTwoTransactions: 0.01,
		MaxDelayBetweenTwoTransactions: 0.02,
		ProbabilityOfStart:             1,
	}, zap.NewNop())

	atg.Start()
	require.True(t, csms.WaitForAction("StartTransaction", 1, 5*time.Second))
	require.True(t, csms.WaitForAction("StopTransaction", 1, 5*time.Second))
	atg.Stop()

	// Stop drains every loop; no connector may keep a live transaction.
	for _, id := range st.ConnectorIDs() {
		assert.Nil(t, st.Connector(id).Transaction())
	}
}

func TestATG_StopEndsLiveTransaction(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()
	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	atg := NewATG(st, domain.ATGOptions{
		Enable:                         true,
		MinDuration:                    120,
		MaxDuration:                    120,
		MinDelayBetweenTwoTransactions: 0.01,
		MaxDelayBetweenTwoTransactions: 0.02,
		ProbabilityOfStart:             1,
	}, zap.NewNop())

	atg.Start()
	require.True(t, csms.WaitForAction("StartTransaction", 1, 5*time.Second))
	atg.Stop()

	require.True(t, csms.WaitForAction("StopTransaction", 1, 5*time.Second))
	for _, id := range st.ConnectorIDs() {
		assert.Nil(t, st.Connector(id).Transaction())
	}
}

func TestATG_ZeroProbabilityStaysIdle(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()
	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	atg := NewATG(st, domain.ATGOptions{
		Enable:                         true,
		MinDelayBetweenTwoTransactions: 0.01,
		MaxDelayBetweenTwoTransactions: 0.02,
		ProbabilityOfStart:             0,
	}, zap.NewNop())

	atg.Start()
	time.Sleep(200 * time.Millisecond)
	atg.Stop()

	assert.False(t, csms.WaitForAction("StartTransaction", 1, 50*time.Millisecond))
}

func TestATG_SkipsAuthorizeWhenNotRequired(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()
	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	noAuth := false
	atg := NewATG(st, domain.ATGOptions{
		Enable:                         true,
		MinDuration:                    0.05,
		MaxDuration:                    0.1,
		MinDelayBetweenTwoTransactions: 0.01,
		MaxDelayBetweenTwoTransactions: 0.02,
		ProbabilityOfStart:             1,
		RequireAuthorize:               &noAuth,
	}, zap.NewNop())

	atg.Start()
	require.True(t, csms.WaitForAction("StartTransaction", 1, 5*time.Second))
	atg.Stop()

	assert.Empty(t, csms.ReceivedByAction("Authorize"))
}

func TestATG_AuthorizesByDefault(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()
	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	atg := NewATG(st, domain.ATGOptions{
		Enable:                         true,
		MinDuration:                    0.05,
		MaxDuration:                    0.1,
		MinDelayBetweenTwoTransactions: 0.01,
		MaxDelayBetweenTwoTransactions: 0.02,
		ProbabilityOfStart:             1,
	}, zap.NewNop())

	atg.Start()
	require.True(t, csms.WaitForAction("StartTransaction", 1, 5*time.Second))
	atg.Stop()

	assert.NotEmpty(t, csms.ReceivedByAction("Authorize"))
}
