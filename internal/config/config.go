package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"guildline/internal/domain"
)

// Config models guildline.yml, the economy settings applied to a guild.
type Config struct {
	Guild struct {
		ID       string `yaml:"id" json:"id"`
		Currency string `yaml:"currency" json:"currency"`
	} `yaml:"guild" json:"guild"`
	Jobs         JobDefaults         `yaml:"jobs" json:"jobs"`
	Distribution DistributionDefault `yaml:"distribution" json:"distribution"`
	Contracts    ContractSettings    `yaml:"contracts" json:"contracts"`
	Vault        VaultSeed           `yaml:"vault" json:"vault"`
	Workshops    WorkshopDefaults    `yaml:"workshops" json:"workshops"`
}

type JobDefaults struct {
	Category          string `yaml:"category" json:"category"`
	EstimatedDuration string `yaml:"estimated_duration" json:"estimatedDuration"`
	Difficulty        string `yaml:"difficulty" json:"difficulty"`
	MaxParticipants   int    `yaml:"max_participants" json:"maxParticipants"`
	MinRank           string `yaml:"min_rank" json:"minRank"`
	DeadlineDays      int    `yaml:"deadline_days" json:"deadlineDays"`
	ExternalClient    bool   `yaml:"external_client" json:"externalClient"`
}

type DistributionDefault struct {
	GuildMasterShare     float64 `yaml:"guild_master_share" json:"guildMasterShare"`
	GuildVaultShare      float64 `yaml:"guild_vault_share" json:"guildVaultShare"`
	EqualSplit           bool    `yaml:"equal_split" json:"equalSplit"`
	PerformanceBonus     bool    `yaml:"performance_bonus" json:"performanceBonus"`
	SkillLevelMultiplier bool    `yaml:"skill_level_multiplier" json:"skillLevelMultiplier"`
}

type MilestoneTemplate struct {
	Title       string  `yaml:"title" json:"title"`
	Description string  `yaml:"description" json:"description"`
	Percentage  float64 `yaml:"percentage" json:"percentage"`
	// DueDays counts from contract creation; AtDeadline uses the job deadline instead.
	DueDays    int  `yaml:"due_days" json:"dueDays"`
	AtDeadline bool `yaml:"at_deadline" json:"atDeadline"`
}

type ContractSettings struct {
	ApprovalRatio float64             `yaml:"approval_ratio" json:"approvalRatio"`
	VotingDays    int                 `yaml:"voting_days" json:"votingDays"`
	Milestones    []MilestoneTemplate `yaml:"milestones" json:"milestones"`
}

type VaultSeed struct {
	SeedBalance           float64 `yaml:"seed_balance" json:"seedBalance"`
	MinBalance            float64 `yaml:"min_balance" json:"minBalance"`
	AutoFunding           bool    `yaml:"auto_funding" json:"autoFunding"`
	AutoFundingPercentage float64 `yaml:"auto_funding_percentage" json:"autoFundingPercentage"`
}

type WorkshopDefaults struct {
	SkillCategory   string                  `yaml:"skill_category" json:"skillCategory"`
	TargetLevel     string                  `yaml:"target_level" json:"targetLevel"`
	Duration        domain.LearningDuration `yaml:"duration" json:"duration"`
	MaxParticipants int                     `yaml:"max_participants" json:"maxParticipants"`
	FundedBy        string                  `yaml:"funded_by" json:"fundedBy"`
	InstructorType  string                  `yaml:"instructor_type" json:"instructorType"`
	Location        string                  `yaml:"location" json:"location"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import one with gl config import", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the economy settings are internally consistent.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"distribution.guild_master_share": c.Distribution.GuildMasterShare,
		"distribution.guild_vault_share":  c.Distribution.GuildVaultShare,
		"vault.auto_funding_percentage":   c.Vault.AutoFundingPercentage,
	} {
		if v < 0 || v > 100 || math.IsNaN(v) {
			return fmt.Errorf("config.%s must be within [0,100]", name)
		}
	}
	if c.Distribution.GuildMasterShare+c.Distribution.GuildVaultShare > 100 {
		return fmt.Errorf("config.distribution shares exceed 100")
	}
	if c.Distribution.EqualSplit && c.Distribution.SkillLevelMultiplier {
		return fmt.Errorf("config.distribution.equal_split and skill_level_multiplier are mutually exclusive")
	}
	if c.Jobs.MaxParticipants <= 0 {
		return fmt.Errorf("config.jobs.max_participants must be positive")
	}
	if c.Jobs.DeadlineDays <= 0 {
		return fmt.Errorf("config.jobs.deadline_days must be positive")
	}
	if c.Jobs.Difficulty != "" && !domain.Difficulty(c.Jobs.Difficulty).Valid() {
		return fmt.Errorf("config.jobs.difficulty %q is not a known level", c.Jobs.Difficulty)
	}
	if c.Contracts.ApprovalRatio <= 0 || c.Contracts.ApprovalRatio > 1 {
		return fmt.Errorf("config.contracts.approval_ratio must be within (0,1]")
	}
	if c.Contracts.VotingDays < 0 {
		return fmt.Errorf("config.contracts.voting_days must not be negative")
	}
	if len(c.Contracts.Milestones) == 0 {
		return fmt.Errorf("config.contracts.milestones is required")
	}
	var sum float64
	for i, m := range c.Contracts.Milestones {
		if m.Title == "" {
			return fmt.Errorf("config.contracts.milestones[%d].title is required", i)
		}
		if m.Percentage < 0 {
			return fmt.Errorf("milestone %s has negative percentage", m.Title)
		}
		sum += m.Percentage
	}
	if !domain.SumsTo(sum, 100) {
		return fmt.Errorf("config.contracts.milestones percentages sum to %v, want 100", sum)
	}
	if c.Vault.SeedBalance < 0 || c.Vault.MinBalance < 0 {
		return fmt.Errorf("config.vault balances must not be negative")
	}
	if c.Workshops.MaxParticipants <= 0 {
		return fmt.Errorf("config.workshops.max_participants must be positive")
	}
	if !domain.TargetLevel(c.Workshops.TargetLevel).Valid() {
		return fmt.Errorf("config.workshops.target_level %q is not a known level", c.Workshops.TargetLevel)
	}
	if err := c.Workshops.Duration.Validate(); err != nil {
		return fmt.Errorf("config.workshops.%w", err)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "guildline.yml")
}

const guildIDPlaceholder = "<guild_id>"

// GenerateDefault returns default config YAML.
func GenerateDefault(guildID string) string {
	return strings.Replace(defaultTemplate, guildIDPlaceholder, strconv.Quote(guildID), 1)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a guild.
func Default(guildID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(guildID))).Decode(&cfg)
	cfg.Guild.ID = guildID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from data
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Contracts.Milestones = append([]MilestoneTemplate(nil), c.Contracts.Milestones...)
	return &out
}

// ProfitDistribution builds the default job policy.
func (c *Config) ProfitDistribution() domain.ProfitDistribution {
	return domain.ProfitDistribution{
		GuildMasterShare:      domain.Percentage(c.Distribution.GuildMasterShare),
		GuildVaultShare:       domain.Percentage(c.Distribution.GuildVaultShare),
		ParticipantShares:     map[string]domain.Percentage{},
		TotalPercentage:       100,
		EqualSplit:            c.Distribution.EqualSplit,
		PerformanceBasedBonus: c.Distribution.PerformanceBonus,
		SkillLevelMultiplier:  c.Distribution.SkillLevelMultiplier,
	}
}

const defaultTemplate = `guild:
  id: <guild_id>
  currency: QAR

jobs:
  category: general
  estimated_duration: 1 week
  difficulty: intermediate
  max_participants: 5
  min_rank: G
  deadline_days: 30
  external_client: true

distribution:
  guild_master_share: 20
  guild_vault_share: 10
  equal_split: true
  performance_bonus: false
  skill_level_multiplier: false

contracts:
  approval_ratio: 0.6
  voting_days: 7
  milestones:
    - title: Project Kickoff
      description: Initial planning and setup completed
      percentage: 25
      due_days: 7
    - title: Mid-Project Review
      description: 50% of work completed and reviewed
      percentage: 35
      due_days: 14
    - title: Final Delivery
      description: Project completed and delivered to client
      percentage: 40
      at_deadline: true

vault:
  seed_balance: 25000
  min_balance: 5000
  auto_funding: true
  auto_funding_percentage: 15

workshops:
  skill_category: general
  target_level: beginner
  duration:
    value: 2
    unit: hours
  max_participants: 10
  funded_by: guild_vault
  instructor_type: external
  location: Online
`
