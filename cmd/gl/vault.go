package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"guildline/internal/engine"
)

func vaultCmd() *cobra.Command {
	v := &cobra.Command{
		Use:   "vault",
		Short: "Guild treasury",
		Long:  "The vault holds the guild's shared funds. Balance always equals the seed plus every completed ledger entry.",
	}
	v.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show vault balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				vault, err := e.GetVault(ctx, guildID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(vault)
				}
				tw := newTable("Fund", "Amount")
				tw.AppendRows([]table.Row{
					{"balance", money(vault.Balance)},
					{"workshop", money(vault.WorkshopFund)},
					{"course", money(vault.CourseFund)},
					{"event", money(vault.EventFund)},
					{"emergency", money(vault.EmergencyFund)},
					{"total earned", money(vault.TotalEarned)},
					{"total deposited", money(vault.TotalDeposited)},
					{"total withdrawn", money(vault.TotalWithdrawn)},
					{"spent on development", money(vault.TotalSpentOnDevelopment)},
				})
				tw.Render()
				return nil
			})
		},
	})
	v.AddCommand(vaultDepositCmd())
	v.AddCommand(vaultWithdrawCmd())
	v.AddCommand(vaultTransactionsCmd())
	v.AddCommand(&cobra.Command{
		Use:   "audit",
		Short: "Reconcile the balance against the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				report, err := e.AuditVault(ctx, guildID)
				if viper.GetBool("json") {
					if perr := printJSON(report); perr != nil {
						return perr
					}
					return err
				}
				if err != nil {
					return err
				}
				fmt.Printf("vault balanced: %s = seed %s + %.2f over %d transactions\n",
					money(report.Balance), money(report.SeedBalance), report.SignedSum, report.Transactions)
				return nil
			})
		},
	})
	return v
}

func vaultDepositCmd() *cobra.Command {
	var amount float64
	var description string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit into the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				res, err := e.Deposit(ctx, guildID, amount, description, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func vaultWithdrawCmd() *cobra.Command {
	var amount float64
	var description, category string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw from the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				res, err := e.Withdraw(ctx, guildID, amount, description, actor(), category)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "workshop, course, event or emergency to draw on a sub-fund")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func vaultTransactionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List vault transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				txs, err := e.ListVaultTransactions(ctx, guildID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(txs)
				}
				tw := newTable("ID", "Time", "Type", "Amount", "Category", "By", "Description")
				for _, tx := range txs {
					tw.AppendRow(table.Row{tx.ID, tx.Timestamp.Format("2006-01-02 15:04"), tx.Type, money(tx.Amount), tx.Category, tx.InitiatedBy, tx.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum transactions (0 for all)")
	return cmd
}
