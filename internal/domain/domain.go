package domain

import "time"

type JobStatus string

const (
	JobDraft           JobStatus = "draft"
	JobPendingApproval JobStatus = "pending_approval"
	JobActive          JobStatus = "active"
	JobInProgress      JobStatus = "in_progress"
	JobCompleted       JobStatus = "completed"
	JobCancelled       JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobDraft, JobPendingApproval, JobActive, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert:
		return true
	}
	return false
}

type ContractStatus string

const (
	ContractDraft        ContractStatus = "draft"
	ContractPendingVotes ContractStatus = "pending_votes"
	ContractApproved     ContractStatus = "approved"
	ContractRejected     ContractStatus = "rejected"
	ContractActive       ContractStatus = "active"
	ContractCompleted    ContractStatus = "completed"
)

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractDraft, ContractPendingVotes, ContractApproved, ContractRejected, ContractActive, ContractCompleted:
		return true
	}
	return false
}

// VotingOpen reports whether member votes may still change the outcome.
func (s ContractStatus) VotingOpen() bool {
	return s == ContractDraft || s == ContractPendingVotes
}

// Open reports whether the contract still occupies its job.
func (s ContractStatus) Open() bool {
	return s != ContractRejected && s != ContractCompleted
}

type Vote string

const (
	VoteAccept  Vote = "accept"
	VoteReject  Vote = "reject"
	VotePending Vote = "pending"
)

type TransactionType string

const (
	TxDeposit         TransactionType = "deposit"
	TxWithdrawal      TransactionType = "withdrawal"
	TxJobPayment      TransactionType = "job_payment"
	TxWorkshopFunding TransactionType = "workshop_funding"
	TxCourseFunding   TransactionType = "course_funding"
	TxGuildEvent      TransactionType = "guild_event"
)

// Inflow reports whether transactions of type t add to the vault balance.
func (t TransactionType) Inflow() bool {
	return t == TxDeposit || t == TxJobPayment
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxApproved  TransactionStatus = "approved"
	TxCompleted TransactionStatus = "completed"
	TxRejected  TransactionStatus = "rejected"
)

type FundingStatus string

const (
	FundingPending   FundingStatus = "pending"
	FundingApproved  FundingStatus = "approved"
	FundingFunded    FundingStatus = "funded"
	FundingCompleted FundingStatus = "completed"
)

type TargetLevel string

const (
	TargetBeginner     TargetLevel = "beginner"
	TargetIntermediate TargetLevel = "intermediate"
	TargetAdvanced     TargetLevel = "advanced"
)

func (l TargetLevel) Valid() bool {
	return l == TargetBeginner || l == TargetIntermediate || l == TargetAdvanced
}

// Proficiency is the strictly ordered level a member holds in one skill.
type Proficiency string

const (
	ProficiencyNovice       Proficiency = "novice"
	ProficiencyBeginner     Proficiency = "beginner"
	ProficiencyIntermediate Proficiency = "intermediate"
	ProficiencyAdvanced     Proficiency = "advanced"
	ProficiencyExpert       Proficiency = "expert"
)

// Rank orders proficiencies from novice (0) to expert (4).
func (p Proficiency) Rank() int {
	switch p {
	case ProficiencyBeginner:
		return 1
	case ProficiencyIntermediate:
		return 2
	case ProficiencyAdvanced:
		return 3
	case ProficiencyExpert:
		return 4
	}
	return 0
}

// Vault categories that feed the sub-fund accumulators.
const (
	CategoryWorkshop = "workshop"
	CategoryCourse   = "course"
	CategoryEvent    = "event"
)

// ProfitDistribution is the payout policy attached to a job and copied into its contract.
type ProfitDistribution struct {
	GuildMasterShare      Percentage            `json:"guildMasterShare"`
	ParticipantShares     map[string]Percentage `json:"participantShares"`
	GuildVaultShare       Percentage            `json:"guildVaultShare"`
	TotalPercentage       Percentage            `json:"totalPercentage"`
	EqualSplit            bool                  `json:"equalSplit"`
	PerformanceBasedBonus bool                  `json:"performanceBasedBonus"`
	SkillLevelMultiplier  bool                  `json:"skillLevelMultiplier"`
}

// Clone returns a copy that shares no map with p.
func (p ProfitDistribution) Clone() ProfitDistribution {
	out := p
	out.ParticipantShares = make(map[string]Percentage, len(p.ParticipantShares))
	for k, v := range p.ParticipantShares {
		out.ParticipantShares[k] = v
	}
	return out
}

type GuildJob struct {
	ID                 string             `json:"id"`
	GuildID            string             `json:"guildId"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	Category           string             `json:"category"`
	TotalBudget        Money              `json:"totalBudget"`
	EstimatedDuration  string             `json:"estimatedDuration"`
	RequiredSkills     []string           `json:"requiredSkills"`
	DifficultyLevel    Difficulty         `json:"difficultyLevel"`
	CreatedBy          string             `json:"createdBy"`
	MaxParticipants    int                `json:"maxParticipants"`
	MinRankRequired    string             `json:"minRankRequired"`
	ContractID         string             `json:"contractId,omitempty"`
	ProfitDistribution ProfitDistribution `json:"profitDistribution"`
	Status             JobStatus          `json:"status"`
	CreatedAt          time.Time          `json:"createdAt"`
	Deadline           time.Time          `json:"deadline"`
	StartDate          *time.Time         `json:"startDate,omitempty"`
	CompletedAt        *time.Time         `json:"completedAt,omitempty"`
	AssignedMembers    []string           `json:"assignedMembers"`
	Applicants         []string           `json:"applicants"`
	ClientName         string             `json:"clientName"`
	ClientContact      string             `json:"clientContact"`
	IsExternalClient   bool               `json:"isExternalClient"`
}

type GuildContractMilestone struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	DueDate           time.Time  `json:"dueDate"`
	PaymentPercentage Percentage `json:"paymentPercentage"`
	IsCompleted       bool       `json:"isCompleted"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CompletedBy       string     `json:"completedBy,omitempty"`
}

type GuildContract struct {
	ID                 string                   `json:"id"`
	GuildID            string                   `json:"guildId"`
	JobID              string                   `json:"jobId"`
	Title              string                   `json:"title"`
	Description        string                   `json:"description"`
	TotalAmount        Money                    `json:"totalAmount"`
	ProfitDistribution ProfitDistribution       `json:"profitDistribution"`
	Terms              []string                 `json:"terms"`
	Responsibilities   map[string][]string      `json:"responsibilities"`
	Milestones         []GuildContractMilestone `json:"milestones"`
	Status             ContractStatus           `json:"status"`
	CreatedBy          string                   `json:"createdBy"`
	CreatedAt          time.Time                `json:"createdAt"`
	VotingDeadline     time.Time                `json:"votingDeadline"`
	MemberVotes        map[string]Vote          `json:"memberVotes"`
	RequiredApprovals  int                      `json:"requiredApprovals"`
	CurrentApprovals   int                      `json:"currentApprovals"`
	StartDate          *time.Time               `json:"startDate,omitempty"`
	CompletedAt        *time.Time               `json:"completedAt,omitempty"`
	ActualEarnings     *Money                   `json:"actualEarnings,omitempty"`
	DistributedAmounts map[string]Money         `json:"distributedAmounts,omitempty"`
	GuildMasterAmount  *Money                   `json:"guildMasterAmount,omitempty"`
	GuildVaultAmount   *Money                   `json:"guildVaultAmount,omitempty"`
}

// Acceptors returns the members whose vote is accept, sorted for stable output.
func (c GuildContract) Acceptors() []string {
	var out []string
	for user, v := range c.MemberVotes {
		if v == VoteAccept {
			out = append(out, user)
		}
	}
	return SortedCopy(out)
}

type GuildVault struct {
	GuildID                 string     `json:"guildId"`
	Balance                 Money      `json:"balance"`
	SeedBalance             Money      `json:"seedBalance"`
	WorkshopFund            Money      `json:"workshopFund"`
	CourseFund              Money      `json:"courseFund"`
	EventFund               Money      `json:"eventFund"`
	EmergencyFund           Money      `json:"emergencyFund"`
	TotalDeposited          Money      `json:"totalDeposited"`
	TotalWithdrawn          Money      `json:"totalWithdrawn"`
	TotalEarned             Money      `json:"totalEarned"`
	TotalSpentOnDevelopment Money      `json:"totalSpentOnDevelopment"`
	MinBalanceRequired      Money      `json:"minBalanceRequired"`
	AutoFundingEnabled      bool       `json:"autoFundingEnabled"`
	AutoFundingPercentage   Percentage `json:"autoFundingPercentage"`
	LastUpdated             time.Time  `json:"lastUpdated"`
	Version                 int64      `json:"version"`
}

type GuildVaultTransaction struct {
	ID                string            `json:"id"`
	GuildID           string            `json:"guildId"`
	Type              TransactionType   `json:"type"`
	Amount            Money             `json:"amount"`
	Description       string            `json:"description"`
	InitiatedBy       string            `json:"initiatedBy"`
	ApprovedBy        string            `json:"approvedBy,omitempty"`
	RelatedJobID      string            `json:"relatedJobId,omitempty"`
	RelatedContractID string            `json:"relatedContractId,omitempty"`
	Category          string            `json:"category,omitempty"`
	Recipient         string            `json:"recipient,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	Status            TransactionStatus `json:"status"`
}

type GuildWorkshop struct {
	ID                 string             `json:"id"`
	GuildID            string             `json:"guildId"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	SkillCategory      string             `json:"skillCategory"`
	TargetLevel        TargetLevel        `json:"targetLevel"`
	Duration           LearningDuration   `json:"duration"`
	MaxParticipants    int                `json:"maxParticipants"`
	Cost               Money              `json:"cost"`
	FundedBy           string             `json:"fundedBy"`
	FundingStatus      FundingStatus      `json:"fundingStatus"`
	InstructorName     string             `json:"instructorName"`
	InstructorType     string             `json:"instructorType"`
	InstructorID       string             `json:"instructorId,omitempty"`
	ScheduledDate      *time.Time         `json:"scheduledDate,omitempty"`
	Location           string             `json:"location"`
	RegisteredMembers  []string           `json:"registeredMembers"`
	CompletedMembers   []string           `json:"completedMembers"`
	CertificatesIssued bool               `json:"certificatesIssued"`
	SkillsImproved     []string           `json:"skillsImproved"`
	AverageRating      *float64           `json:"averageRating,omitempty"`
	Feedback           map[string]string  `json:"feedback"`
	Ratings            map[string]float64 `json:"ratings,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	CreatedBy          string             `json:"createdBy"`
}

type GuildSkillLevel struct {
	Level                Proficiency `json:"level"`
	Points               int         `json:"points"`
	LastImproved         time.Time   `json:"lastImproved"`
	CertificationLevel   string      `json:"certificationLevel,omitempty"`
	RecommendedWorkshops []string    `json:"recommendedWorkshops"`
	RecommendedCourses   []string    `json:"recommendedCourses"`
	NextMilestone        string      `json:"nextMilestone"`
}

type GuildMemberSkillProgress struct {
	UserID               string                     `json:"userId"`
	GuildID              string                     `json:"guildId"`
	Skills               map[string]GuildSkillLevel `json:"skills"`
	WorkshopsAttended    []string                   `json:"workshopsAttended"`
	CoursesCompleted     []string                   `json:"coursesCompleted"`
	JobsParticipated     []string                   `json:"jobsParticipated"`
	SkillPointsEarned    int                        `json:"skillPointsEarned"`
	TotalLearningHours   float64                    `json:"totalLearningHours"`
	CertificationsEarned []string                   `json:"certificationsEarned"`
	JobSuccessRate       float64                    `json:"jobSuccessRate"`
	AverageClientRating  float64                    `json:"averageClientRating"`
	TeamworkScore        float64                    `json:"teamworkScore"`
	LastUpdated          time.Time                  `json:"lastUpdated"`
}

// Clone returns a deep copy so callers can derive new progress without aliasing.
func (p GuildMemberSkillProgress) Clone() GuildMemberSkillProgress {
	out := p
	out.Skills = make(map[string]GuildSkillLevel, len(p.Skills))
	for k, v := range p.Skills {
		v.RecommendedWorkshops = append([]string(nil), v.RecommendedWorkshops...)
		v.RecommendedCourses = append([]string(nil), v.RecommendedCourses...)
		out.Skills[k] = v
	}
	out.WorkshopsAttended = append([]string(nil), p.WorkshopsAttended...)
	out.CoursesCompleted = append([]string(nil), p.CoursesCompleted...)
	out.JobsParticipated = append([]string(nil), p.JobsParticipated...)
	out.CertificationsEarned = append([]string(nil), p.CertificationsEarned...)
	return out
}

// Event is an audit log row written alongside every mutation.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	GuildID    string `json:"guildId,omitempty"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payloadJson"`
}
