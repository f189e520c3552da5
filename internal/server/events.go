package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/repo"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func eventsPage(items []domain.Event, next string) *output[paginatedEvents] {
	page := paginatedEvents{Items: make([]domain.Event, 0, len(items)), NextCursor: next}
	page.Items = append(page.Items, items...)
	return ok(page)
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/events",
		Summary:     "List recent events, newest first",
		Description: "nextCursor is set when older events remain; pass it back as cursor.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, in *struct {
		GuildID    string `path:"guild_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"guild,job,contract,vault,vault_transaction,workshop,member"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*output[paginatedEvents], error) {
		before, cerr := parseCursor(in.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		limit := pageSize(in.Limit)
		items, err := e.ListEvents(ctx, repo.EventFilters{
			GuildID:    in.GuildID,
			Type:       in.Type,
			EntityKind: in.EntityKind,
			EntityID:   in.EntityID,
			Before:     before,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		var next string
		if len(items) > limit {
			items = items[:limit]
			next = strconv.FormatInt(items[limit-1].ID, 10)
		}
		return eventsPage(items, next), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tail-events",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/events/tail",
		Summary:     "Events after a cursor, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, in *struct {
		GuildID string `path:"guild_id"`
		After   string `query:"after"`
		Limit   int    `query:"limit" default:"50"`
	}) (*output[paginatedEvents], error) {
		after, cerr := parseCursor(in.After)
		if cerr != nil {
			return nil, cerr
		}
		items, err := e.Repo.EventsAfter(ctx, nil, in.GuildID, after, pageSize(in.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		next := in.After
		if n := len(items); n > 0 {
			next = strconv.FormatInt(items[n-1].ID, 10)
		}
		return eventsPage(items, next), nil
	})
}

// parseCursor reads an event id cursor; empty means start.
func parseCursor(raw string) (int64, huma.StatusError) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": raw})
	}
	return v, nil
}

func pageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	}
	return n
}
