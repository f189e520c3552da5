package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/ledger"
)

func registerVault(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-vault",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/vault",
		Summary:     "Get the guild vault",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *GuildParams) (*output[domain.GuildVault], error) {
		v, err := e.GetVault(ctx, input.GuildID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "init-vault",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/vault/init",
		Summary:     "Create the vault from the configured seed",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *GuildParams) (*output[vaultInitResponse], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		v, created, err := e.InitVault(ctx, input.GuildID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(vaultInitResponse{Vault: v, Created: created}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vault-deposit",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/vault/deposits",
		Summary:     "Deposit into the vault",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		GuildParams
		Body DepositRequest
	}) (*output[engine.VaultResult], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		res, err := e.Deposit(ctx, input.GuildID, input.Body.Amount, input.Body.Description, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vault-withdraw",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/vault/withdrawals",
		Summary:     "Withdraw from the vault",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		GuildParams
		Body WithdrawRequest
	}) (*output[engine.VaultResult], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		res, err := e.Withdraw(ctx, input.GuildID, input.Body.Amount, input.Body.Description, actor, input.Body.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-vault-transactions",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/vault/transactions",
		Summary:     "List vault transactions, oldest first",
	}, func(ctx context.Context, input *struct {
		GuildParams
		Limit int `query:"limit" minimum:"0"`
	}) (*output[[]domain.GuildVaultTransaction], error) {
		txs, err := e.ListVaultTransactions(ctx, input.GuildID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if txs == nil {
			txs = []domain.GuildVaultTransaction{}
		}
		return ok(txs), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit-vault",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/vault/audit",
		Summary:     "Reconcile the vault against its ledger",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *GuildParams) (*output[ledger.Report], error) {
		report, err := e.AuditVault(ctx, input.GuildID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(report), nil
	})
}
