// Package distribution converts a profit policy and an earned amount into payouts.
package distribution

import (
	"guildline/internal/domain"
)

type Mode string

const (
	ModeEqualSplit Mode = "equal_split"
	ModeSkill      Mode = "skill_level_multiplier"
	ModeExplicit   Mode = "explicit_shares"
)

// Payout is the full split of one amount.
type Payout struct {
	Mode         Mode                    `json:"mode"`
	Total        domain.Money            `json:"total"`
	GuildMaster  domain.Money            `json:"guildMaster"`
	Vault        domain.Money            `json:"vault"`
	Participants map[string]domain.Money `json:"participants"`
}

// ParticipantSharable is the percentage left after the Guild Master and vault cuts.
func ParticipantSharable(p domain.ProfitDistribution) float64 {
	return 100 - p.GuildMasterShare.Float() - p.GuildVaultShare.Float()
}

// SelectMode applies the policy precedence: equal split, then skill multiplier when
// scores are supplied, then explicit shares.
func SelectMode(p domain.ProfitDistribution, skillLevels map[string]float64) Mode {
	switch {
	case p.EqualSplit:
		return ModeEqualSplit
	case p.SkillLevelMultiplier && len(skillLevels) > 0:
		return ModeSkill
	}
	return ModeExplicit
}

// Split returns the Guild Master and vault cuts of total.
func Split(p domain.ProfitDistribution, total domain.Money) (guildMaster, vault domain.Money) {
	return p.GuildMasterShare.Of(total), p.GuildVaultShare.Of(total)
}

// Distribute returns each participant's amount of total. Neither the policy nor the
// score map is modified. Amounts are plain float products; remainders are not reconciled.
func Distribute(p domain.ProfitDistribution, total domain.Money, participants []string, skillLevels map[string]float64) (map[string]domain.Money, error) {
	sharable := ParticipantSharable(p)
	if sharable < -domain.PercentTolerance {
		return nil, domain.Violation("distribution.total", "guild master %v%% and vault %v%% exceed 100%%", p.GuildMasterShare, p.GuildVaultShare)
	}
	amounts := make(map[string]domain.Money, len(participants))
	switch SelectMode(p, skillLevels) {
	case ModeEqualSplit:
		if len(participants) == 0 {
			return nil, domain.Invalid("participants", "equal split needs at least one participant")
		}
		each := sharable / float64(len(participants))
		for _, u := range participants {
			amounts[u] = domain.Money(each * total.Float() / 100)
		}
	case ModeSkill:
		if len(participants) == 0 {
			return nil, domain.Invalid("participants", "skill split needs at least one participant")
		}
		// Scores are normalised over the whole map, so scores of non-participants
		// dilute the pool and unscored participants weigh 1.
		var sum float64
		for _, w := range skillLevels {
			if w > 0 {
				sum += w
			}
		}
		if sum <= 0 {
			return nil, domain.Invalid("skillLevels", "need at least one positive level")
		}
		for _, u := range participants {
			w := skillLevels[u]
			if w <= 0 {
				w = 1
			}
			amounts[u] = domain.Money(sharable * w / sum * total.Float() / 100)
		}
	default:
		for _, u := range participants {
			amounts[u] = p.ParticipantShares[u].Of(total)
		}
	}
	return amounts, nil
}

// Compute runs Distribute and Split together.
func Compute(p domain.ProfitDistribution, total domain.Money, participants []string, skillLevels map[string]float64) (Payout, error) {
	amounts, err := Distribute(p, total, participants, skillLevels)
	if err != nil {
		return Payout{}, err
	}
	gm, vault := Split(p, total)
	return Payout{
		Mode:         SelectMode(p, skillLevels),
		Total:        total,
		GuildMaster:  gm,
		Vault:        vault,
		Participants: amounts,
	}, nil
}

// ValidatePolicy checks the percentage invariants of a policy.
func ValidatePolicy(p domain.ProfitDistribution) error {
	for name, v := range map[string]domain.Percentage{
		"guildMasterShare": p.GuildMasterShare,
		"guildVaultShare":  p.GuildVaultShare,
	} {
		if _, err := domain.NewPercentage(v.Float()); err != nil {
			return domain.Invalid("profitDistribution."+name, "must be within [0,100], got %v", v)
		}
	}
	fixed := p.GuildMasterShare.Float() + p.GuildVaultShare.Float()
	if fixed > 100+domain.PercentTolerance {
		return domain.Violation("distribution.total", "guild master and vault shares sum to %v%%", fixed)
	}
	if p.EqualSplit && p.SkillLevelMultiplier {
		return domain.Invalid("profitDistribution", "equalSplit and skillLevelMultiplier are mutually exclusive")
	}
	if p.EqualSplit || p.SkillLevelMultiplier {
		return nil
	}
	total := fixed
	for user, share := range p.ParticipantShares {
		if _, err := domain.NewPercentage(share.Float()); err != nil {
			return domain.Invalid("profitDistribution.participantShares."+user, "must be within [0,100], got %v", share)
		}
		total += share.Float()
	}
	if !domain.SumsTo(total, 100) {
		return domain.Violation("distribution.total", "explicit shares sum to %v%%, want 100%%", total)
	}
	return nil
}
