package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/persistence"
)

func TestDueCandidatesExcludeSettledStates(t *testing.T) {
	tx := &recordingTx{}
	ctx := persistence.ContextWithTx(context.Background(), tx)
	repo := NewEngagementRepository(nil)

	leads, err := repo.ListDueCandidates(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, leads)

	// Idle rows have had no outreach, Responded rows wait for the next
	// operator-driven cycle, and NoResponse is terminal. None of them can
	// time out, so the sweep must not keep reloading them.
	require.Len(t, tx.stmts, 1)
	require.Len(t, tx.args[0], 4)
	excluded := tx.args[0][:3]
	assert.Contains(t, excluded, domain.EngagementIdle)
	assert.Contains(t, excluded, domain.EngagementResponded)
	assert.Contains(t, excluded, domain.EngagementNoResponse)
	assert.Equal(t, 50, tx.args[0][3])
}
