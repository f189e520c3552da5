package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"guildline/internal/domain"
	"guildline/internal/engine"
)

func workshopCmd() *cobra.Command {
	w := &cobra.Command{
		Use:   "workshop",
		Short: "Manage workshops",
		Long:  "Workshops are training sessions paid from the vault. Members who complete one earn skill points in every skill it improves.",
	}
	w.AddCommand(workshopCreateCmd())
	w.AddCommand(workshopListCmd())
	w.AddCommand(workshopGetCmd())
	w.AddCommand(workshopSimpleCmd("fund", "Fund a workshop from the vault", func(ctx context.Context, e engine.Engine, guildID, id string) (any, error) {
		return e.FundWorkshop(ctx, guildID, id, actor())
	}))
	w.AddCommand(workshopSimpleCmd("register", "Register the current actor", func(ctx context.Context, e engine.Engine, guildID, id string) (any, error) {
		return e.RegisterMember(ctx, guildID, id, actor())
	}))
	w.AddCommand(workshopSimpleCmd("close", "Complete a funded workshop and issue certificates", func(ctx context.Context, e engine.Engine, guildID, id string) (any, error) {
		return e.CloseWorkshop(ctx, guildID, id, actor())
	}))
	w.AddCommand(workshopCompleteCmd())
	return w
}

func workshopCreateCmd() *cobra.Command {
	var in engine.WorkshopInput
	var level, unit, scheduled string
	var duration float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create workshop",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.TargetLevel = domain.TargetLevel(level)
			if duration > 0 {
				in.Duration = &domain.LearningDuration{Value: duration, Unit: domain.DurationUnit(unit)}
			}
			if scheduled != "" {
				t, err := time.Parse("2006-01-02", scheduled)
				if err != nil {
					return fmt.Errorf("--scheduled: %w", err)
				}
				in.ScheduledDate = &t
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				w, err := e.CreateWorkshop(ctx, guildID, actor(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "workshop title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.SkillCategory, "category", "", "skill category")
	cmd.Flags().StringVar(&level, "level", "", "beginner, intermediate or advanced")
	cmd.Flags().Float64Var(&duration, "duration", 0, "duration value")
	cmd.Flags().StringVar(&unit, "unit", "hours", "duration unit: hours, days or weeks")
	cmd.Flags().IntVar(&in.MaxParticipants, "max-participants", 0, "capacity")
	cmd.Flags().Float64Var(&in.Cost, "cost", 0, "cost paid by the vault")
	cmd.Flags().StringVar(&in.InstructorName, "instructor", "", "instructor name")
	cmd.Flags().StringVar(&scheduled, "scheduled", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Location, "location", "", "location")
	cmd.Flags().StringSliceVar(&in.SkillsImproved, "skill", nil, "skill improved (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func workshopListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workshops",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				items, err := e.ListWorkshops(ctx, guildID, domain.FundingStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Level", "Cost", "Funding", "Registered", "Rating")
				for _, w := range items {
					rating := ""
					if w.AverageRating != nil {
						rating = fmt.Sprintf("%.1f", *w.AverageRating)
					}
					tw.AppendRow(table.Row{w.ID, w.Title, w.TargetLevel, money(w.Cost), w.FundingStatus,
						fmt.Sprintf("%d/%d", len(w.RegisteredMembers), w.MaxParticipants), rating})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "funding status filter")
	return cmd
}

func workshopGetCmd() *cobra.Command {
	return workshopSimpleCmd("get", "Show workshop", func(ctx context.Context, e engine.Engine, guildID, id string) (any, error) {
		return e.GetWorkshop(ctx, guildID, id)
	})
}

func workshopSimpleCmd(use, short string, run func(context.Context, engine.Engine, string, string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				out, err := run(ctx, e, guildID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
}

func workshopCompleteCmd() *cobra.Command {
	var rating float64
	var feedback string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Record the current actor finishing a workshop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				out, err := e.CompleteForMember(ctx, guildID, args[0], actor(), rating, feedback)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				if out.Awarded {
					fmt.Printf("awarded %d points in %d skills\n", out.Award.PointsPerSkill, len(out.Workshop.SkillsImproved))
				} else {
					fmt.Println("feedback updated; points were already awarded")
				}
				printProgress(out.Progress)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&rating, "rating", 5, "rating from 0 to 5")
	cmd.Flags().StringVar(&feedback, "feedback", "", "feedback")
	return cmd
}

func skillsCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "skills",
		Short: "Member skill progress",
	}
	s.AddCommand(&cobra.Command{
		Use:   "show [user]",
		Short: "Show skill progress (defaults to the current actor)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := actor()
			if len(args) == 1 {
				user = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				p, err := e.GetMemberSkillProgress(ctx, guildID, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProgress(p)
				return nil
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members with skill progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				items, err := e.ListMemberSkillProgress(ctx, guildID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Member", "Points", "Hours", "Workshops", "Jobs")
				for _, p := range items {
					tw.AppendRow(table.Row{p.UserID, p.SkillPointsEarned, p.TotalLearningHours, len(p.WorkshopsAttended), len(p.JobsParticipated)})
				}
				tw.Render()
				return nil
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "apply <user> <workshop-id>",
		Short: "Apply a workshop's skill points to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				p, _, awarded, err := e.UpdateSkillProgress(ctx, guildID, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"progress": p, "awarded": awarded})
				}
				printProgress(p)
				return nil
			})
		},
	})
	return s
}

func printProgress(p domain.GuildMemberSkillProgress) {
	tw := newTable("Skill", "Level", "Points", "Next")
	for _, name := range slices.Sorted(maps.Keys(p.Skills)) {
		s := p.Skills[name]
		tw.AppendRow(table.Row{name, s.Level, s.Points, s.NextMilestone})
	}
	tw.AppendFooter(table.Row{"total", "", p.SkillPointsEarned, fmt.Sprintf("%.1f h", p.TotalLearningHours)})
	tw.Render()
}
