package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"guildline/internal/domain"
	"guildline/internal/engine"
)

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
		Long:  "Jobs are client work posted to the guild. Statuses go draft -> pending_approval -> active -> in_progress -> completed (cancelled is the exit).",
	}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobGetCmd())
	job.AddCommand(jobAssignCmd())
	job.AddCommand(jobApplyCmd())
	job.AddCommand(jobStatusCmd())
	return job
}

func jobCreateCmd() *cobra.Command {
	var in engine.JobInput
	var difficulty, deadline string
	var gmShare, vaultShare float64
	var skills []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create job",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.DifficultyLevel = domain.Difficulty(difficulty)
			in.RequiredSkills = skills
			if deadline != "" {
				t, err := time.Parse("2006-01-02", deadline)
				if err != nil {
					return fmt.Errorf("--deadline: %w", err)
				}
				in.Deadline = &t
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				if cmd.Flags().Changed("gm-share") || cmd.Flags().Changed("vault-share") {
					policy := e.Config.ProfitDistribution()
					if cmd.Flags().Changed("gm-share") {
						policy.GuildMasterShare = domain.Percentage(gmShare)
					}
					if cmd.Flags().Changed("vault-share") {
						policy.GuildVaultShare = domain.Percentage(vaultShare)
					}
					in.ProfitDistribution = &policy
				}
				job, err := e.CreateJob(ctx, guildID, actor(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "job title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().Float64Var(&in.TotalBudget, "budget", 0, "total budget")
	cmd.Flags().StringVar(&in.EstimatedDuration, "duration", "", "estimated duration, e.g. \"2 weeks\"")
	cmd.Flags().StringSliceVar(&skills, "skill", nil, "required skill (repeatable)")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "beginner, intermediate, advanced or expert")
	cmd.Flags().IntVar(&in.MaxParticipants, "max-participants", 0, "maximum assigned members")
	cmd.Flags().StringVar(&in.MinRankRequired, "min-rank", "", "minimum member rank")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&in.ClientContact, "client-contact", "", "client contact")
	cmd.Flags().Float64Var(&gmShare, "gm-share", 0, "Guild Master share in percent")
	cmd.Flags().Float64Var(&vaultShare, "vault-share", 0, "vault share in percent")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func jobListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				jobs, err := e.ListJobs(ctx, guildID, domain.JobStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := newTable("ID", "Title", "Status", "Budget", "Members", "Deadline")
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Title, j.Status, money(j.TotalBudget), strings.Join(j.AssignedMembers, ","), stamp(j.Deadline)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func jobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				job, err := e.GetJob(ctx, guildID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
}

func jobAssignCmd() *cobra.Command {
	var members []string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign members to a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				job, err := e.AssignMembers(ctx, guildID, args[0], members, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	cmd.Flags().StringSliceVar(&members, "member", nil, "member id (repeatable)")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func jobApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply to a job as the current actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				job, err := e.ApplyToJob(ctx, guildID, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
}

func jobStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Set job status (--force leaves a terminal status)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				job, err := e.UpdateJobStatus(ctx, guildID, args[0], domain.JobStatus(args[1]), actor(), forced())
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "contract",
		Short: "Manage contracts",
		Long:  "A contract is the agreement for a job. Assigned members vote; once enough accept, the contract is approved and can be completed to distribute the earnings.",
	}
	c.AddCommand(contractCreateCmd())
	c.AddCommand(contractListCmd())
	c.AddCommand(contractGetCmd())
	c.AddCommand(contractVoteCmd())
	c.AddCommand(contractActivateCmd())
	c.AddCommand(contractMilestoneCmd())
	c.AddCommand(contractPreviewCmd())
	c.AddCommand(contractCompleteCmd())
	return c
}

func contractCreateCmd() *cobra.Command {
	var terms []string
	cmd := &cobra.Command{
		Use:   "create <job-id>",
		Short: "Create the contract for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				c, err := e.CreateContract(ctx, guildID, args[0], actor(), engine.ContractInput{Terms: terms})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringArrayVar(&terms, "term", nil, "contract term (repeatable)")
	return cmd
}

func contractListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				items, err := e.ListContracts(ctx, guildID, domain.ContractStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Job", "Status", "Amount", "Approvals")
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.JobID, c.Status, money(c.TotalAmount), fmt.Sprintf("%d/%d", c.CurrentApprovals, c.RequiredApprovals)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func contractGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				c, err := e.GetContract(ctx, guildID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func contractVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <id> <accept|reject>",
		Short: "Vote on a contract as the current actor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				c, err := e.Vote(ctx, guildID, args[0], actor(), domain.Vote(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func contractActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Start work on an approved contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				c, err := e.ActivateContract(ctx, guildID, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func contractMilestoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "milestone <id> <milestone-id>",
		Short: "Complete a milestone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				c, err := e.CompleteMilestone(ctx, guildID, args[0], args[1], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func contractPreviewCmd() *cobra.Command {
	var raw map[string]string
	cmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Preview how the contract amount would be split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			levels, err := parseSkillLevels(raw)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				p, err := e.PreviewDistribution(ctx, guildID, args[0], levels)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("mode %s, total %s, guild master %s, vault %s\n", p.Mode, money(p.Total), money(p.GuildMaster), money(p.Vault))
				printShares(p.Participants)
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVar(&raw, "skill-level", nil, "member=level pairs for skill-weighted splits")
	return cmd
}

// parseSkillLevels turns member=level flag pairs into skill weights.
func parseSkillLevels(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make(map[string]float64, len(raw))
	for member, v := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, domain.Invalid("skill-level", "%s: %q is not a number", member, v)
		}
		if f < 0 {
			return nil, domain.Invalid("skill-level", "%s: level must not be negative", member)
		}
		levels[member] = f
	}
	return levels, nil
}

func contractCompleteCmd() *cobra.Command {
	var earnings float64
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a contract and distribute its earnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				done, err := e.CompleteContract(ctx, guildID, args[0], earnings, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(done)
				}
				fmt.Printf("contract %s completed: guild master %s, vault %s (balance %s)\n",
					done.Contract.ID, money(done.Payout.GuildMaster), money(done.Payout.Vault), money(done.Vault.Balance))
				printShares(done.Payout.Participants)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&earnings, "earnings", 0, "actual earnings")
	_ = cmd.MarkFlagRequired("earnings")
	return cmd
}

func printShares(shares map[string]domain.Money) {
	tw := newTable("Member", "Amount")
	for _, u := range slices.Sorted(maps.Keys(shares)) {
		tw.AppendRow(table.Row{u, money(shares[u])})
	}
	tw.Render()
}
