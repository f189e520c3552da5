// Package skills holds the point and level arithmetic for member skill progression.
package skills

import (
	"fmt"
	"math"
	"strings"
	"time"

	"guildline/internal/domain"
)

// BasePoints are awarded for a two hour beginner workshop.
const BasePoints = 50

var levelMultiplier = map[domain.TargetLevel]float64{
	domain.TargetBeginner:     1,
	domain.TargetIntermediate: 1.5,
	domain.TargetAdvanced:     2,
}

type threshold struct {
	level  domain.Proficiency
	points int
}

// descending
var thresholds = []threshold{
	{domain.ProficiencyExpert, 800},
	{domain.ProficiencyAdvanced, 600},
	{domain.ProficiencyIntermediate, 400},
	{domain.ProficiencyBeginner, 200},
}

// LevelFor maps accumulated points to a proficiency.
func LevelFor(points int) domain.Proficiency {
	for _, t := range thresholds {
		if points >= t.points {
			return t.level
		}
	}
	return domain.ProficiencyNovice
}

// PointsFor returns round(50 × multiplier × hours/2) for one workshop.
func PointsFor(target domain.TargetLevel, d domain.LearningDuration) int {
	mult, ok := levelMultiplier[target]
	if !ok {
		mult = 1
	}
	return int(math.Round(BasePoints * mult * d.Hours() / 2))
}

// NextMilestone describes the next threshold above points.
func NextMilestone(points int) string {
	for i := len(thresholds) - 1; i >= 0; i-- {
		t := thresholds[i]
		if points < t.points {
			return fmt.Sprintf("Reach %d points to advance to %s (%d to go)", t.points, title(t.level), t.points-points)
		}
	}
	return "Expert level reached"
}

func title(p domain.Proficiency) string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// NewProgress returns an empty progress record.
func NewProgress(guildID, userID string, now time.Time) domain.GuildMemberSkillProgress {
	return domain.GuildMemberSkillProgress{
		UserID:               userID,
		GuildID:              guildID,
		Skills:               map[string]domain.GuildSkillLevel{},
		WorkshopsAttended:    []string{},
		CoursesCompleted:     []string{},
		JobsParticipated:     []string{},
		CertificationsEarned: []string{},
		LastUpdated:          now,
	}
}

// Award is the effect of one workshop on one member.
type Award struct {
	WorkshopID     string   `json:"workshopId"`
	PointsPerSkill int      `json:"pointsPerSkill"`
	Skills         []string `json:"skills"`
	Hours          float64  `json:"hours"`
}

// ApplyWorkshop adds a completed workshop to progress and returns the updated copy.
// A workshop already listed in workshopsAttended awards nothing and reports false.
func ApplyWorkshop(progress domain.GuildMemberSkillProgress, w domain.GuildWorkshop, now time.Time) (domain.GuildMemberSkillProgress, Award, bool) {
	out := progress.Clone()
	if out.Skills == nil {
		out.Skills = map[string]domain.GuildSkillLevel{}
	}
	var added bool
	out.WorkshopsAttended, added = domain.AddToSet(out.WorkshopsAttended, w.ID)
	if !added {
		return progress, Award{WorkshopID: w.ID}, false
	}
	points := PointsFor(w.TargetLevel, w.Duration)
	award := Award{WorkshopID: w.ID, PointsPerSkill: points, Hours: w.Duration.Hours()}
	for _, name := range domain.Dedupe(w.SkillsImproved) {
		lvl, ok := out.Skills[name]
		if !ok {
			lvl = domain.GuildSkillLevel{
				Level:                domain.ProficiencyNovice,
				RecommendedWorkshops: []string{},
				RecommendedCourses:   []string{},
			}
		}
		lvl.Points += points
		lvl.Level = LevelFor(lvl.Points)
		lvl.LastImproved = now
		lvl.NextMilestone = NextMilestone(lvl.Points)
		out.Skills[name] = lvl
		out.SkillPointsEarned += points
		award.Skills = append(award.Skills, name)
	}
	out.TotalLearningHours += award.Hours
	out.LastUpdated = now
	return out, award, true
}

// RecordJob adds jobID to jobsParticipated.
func RecordJob(progress domain.GuildMemberSkillProgress, jobID string, now time.Time) domain.GuildMemberSkillProgress {
	out := progress.Clone()
	var added bool
	out.JobsParticipated, added = domain.AddToSet(out.JobsParticipated, jobID)
	if added {
		out.LastUpdated = now
	}
	return out
}

// Score sums a member's points over the given skills, with a floor of one.
func Score(progress domain.GuildMemberSkillProgress, skills []string) float64 {
	var total int
	for _, s := range domain.Dedupe(skills) {
		total += progress.Skills[s].Points
	}
	if total < 1 {
		return 1
	}
	return float64(total)
}
