package distribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildline/internal/domain"
)

func defaultPolicy() domain.ProfitDistribution {
	return domain.ProfitDistribution{
		GuildMasterShare:  20,
		GuildVaultShare:   10,
		TotalPercentage:   100,
		EqualSplit:        true,
		ParticipantShares: map[string]domain.Percentage{},
	}
}

func TestEqualSplitFourMembers(t *testing.T) {
	payout, err := Compute(defaultPolicy(), 10000, []string{"a", "b", "c", "d"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeEqualSplit, payout.Mode)
	for _, u := range []string{"a", "b", "c", "d"} {
		assert.InDelta(t, 1750, payout.Participants[u].Float(), 1e-9)
	}
	assert.InDelta(t, 2000, payout.GuildMaster.Float(), 1e-9)
	assert.InDelta(t, 1000, payout.Vault.Float(), 1e-9)
}

func TestEqualSplitSumMatchesSharable(t *testing.T) {
	policy := defaultPolicy()
	policy.GuildMasterShare = 13
	policy.GuildVaultShare = 7.5
	for n := 1; n <= 9; n++ {
		participants := make([]string, n)
		for i := range participants {
			participants[i] = string(rune('a' + i))
		}
		for _, total := range []domain.Money{1, 333.33, 10000, 987654.21} {
			amounts, err := Distribute(policy, total, participants, nil)
			require.NoError(t, err)
			var sum float64
			for _, v := range amounts {
				sum += v.Float()
			}
			assert.InDelta(t, ParticipantSharable(policy)*total.Float()/100, sum, 1e-6, "n=%d total=%v", n, total)
		}
	}
}

func TestEqualSplitWithoutParticipants(t *testing.T) {
	_, err := Distribute(defaultPolicy(), 100, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSkillMultiplierWeightsParticipants(t *testing.T) {
	policy := defaultPolicy()
	policy.EqualSplit = false
	policy.SkillLevelMultiplier = true
	scores := map[string]float64{"a": 3, "b": 1}
	amounts, err := Distribute(policy, 1000, []string{"a", "b"}, scores)
	require.NoError(t, err)
	assert.InDelta(t, 525, amounts["a"].Float(), 1e-9)
	assert.InDelta(t, 175, amounts["b"].Float(), 1e-9)
	assert.Len(t, scores, 2)
}

func TestSkillMultiplierNormalisesOverAllScores(t *testing.T) {
	policy := defaultPolicy()
	policy.EqualSplit = false
	policy.SkillLevelMultiplier = true
	scores := map[string]float64{"a": 3, "b": 1, "outsider": 6}
	amounts, err := Distribute(policy, 1000, []string{"a", "b", "c"}, scores)
	require.NoError(t, err)
	// 70% sharable over a score total of 10; c is unscored and weighs 1
	assert.InDelta(t, 210, amounts["a"].Float(), 1e-9)
	assert.InDelta(t, 70, amounts["b"].Float(), 1e-9)
	assert.InDelta(t, 70, amounts["c"].Float(), 1e-9)
	assert.NotContains(t, amounts, "outsider")
	assert.Len(t, scores, 3)
}

func TestSkillMultiplierRejectsAllZeroScores(t *testing.T) {
	policy := defaultPolicy()
	policy.EqualSplit = false
	policy.SkillLevelMultiplier = true
	_, err := Distribute(policy, 1000, []string{"a"}, map[string]float64{"a": 0})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSkillMultiplierWithoutScoresUsesExplicitShares(t *testing.T) {
	policy := defaultPolicy()
	policy.EqualSplit = false
	policy.SkillLevelMultiplier = true
	policy.ParticipantShares = map[string]domain.Percentage{"a": 50, "b": 20}
	amounts, err := Distribute(policy, 1000, []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 500, amounts["a"].Float(), 1e-9)
	assert.InDelta(t, 200, amounts["b"].Float(), 1e-9)
}

func TestExplicitSharesMissingUserGetsZero(t *testing.T) {
	policy := defaultPolicy()
	policy.EqualSplit = false
	policy.ParticipantShares = map[string]domain.Percentage{"a": 70}
	amounts, err := Distribute(policy, 200, []string{"a", "z"}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 140, amounts["a"].Float(), 1e-9)
	assert.Equal(t, domain.Money(0), amounts["z"])
}

func TestDistributeDoesNotMutatePolicy(t *testing.T) {
	policy := defaultPolicy()
	policy.EqualSplit = false
	policy.ParticipantShares = map[string]domain.Percentage{"a": 70}
	before := policy.Clone()
	_, err := Distribute(policy, 200, []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, before, policy)
}

func TestValidatePolicy(t *testing.T) {
	require.NoError(t, ValidatePolicy(defaultPolicy()))

	over := defaultPolicy()
	over.GuildMasterShare = 80
	over.GuildVaultShare = 30
	assert.ErrorIs(t, ValidatePolicy(over), domain.ErrInvariantViolation)

	explicit := defaultPolicy()
	explicit.EqualSplit = false
	explicit.ParticipantShares = map[string]domain.Percentage{"a": 40, "b": 20}
	assert.ErrorIs(t, ValidatePolicy(explicit), domain.ErrInvariantViolation)
	explicit.ParticipantShares["b"] = 30
	assert.NoError(t, ValidatePolicy(explicit))

	both := defaultPolicy()
	both.SkillLevelMultiplier = true
	assert.ErrorIs(t, ValidatePolicy(both), domain.ErrValidation)

	neg := defaultPolicy()
	neg.GuildVaultShare = -5
	assert.ErrorIs(t, ValidatePolicy(neg), domain.ErrValidation)
}
