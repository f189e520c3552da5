// Package events appends rows to the guild audit log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"guildline/internal/repo"
)

// Entity kinds recorded in the log.
const (
	KindGuild            = "guild"
	KindJob              = "job"
	KindContract         = "contract"
	KindVault            = "vault"
	KindVaultTransaction = "vault_transaction"
	KindWorkshop         = "workshop"
	KindMember           = "member"
)

// Kinds lists every entity kind in display order.
var Kinds = []string{KindGuild, KindJob, KindContract, KindVault, KindVaultTransaction, KindWorkshop, KindMember}

// EventPayload is the JSON body stored with an event.
type EventPayload map[string]any

// Writer stamps and stores events. The zero value uses time.Now.
type Writer struct {
	Now func() time.Time
}

// Append records one event through q, normally the transaction of the mutation it
// describes so the event commits or rolls back with it. Types are "<area>.<verb>".
func (w Writer) Append(ctx context.Context, q repo.Querier, evtType, guildID, entityKind, entityID, actorID string, payload EventPayload) error {
	area, verb, ok := strings.Cut(evtType, ".")
	if !ok || area == "" || verb == "" {
		return fmt.Errorf("event type %q: want <area>.<verb>", evtType)
	}
	if !slices.Contains(Kinds, entityKind) {
		return fmt.Errorf("event %s: unknown entity kind %q", evtType, entityKind)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", evtType, err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = q.ExecContext(ctx, `INSERT INTO events(ts,type,guild_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339Nano), evtType, orNull(guildID), entityKind, orNull(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func orNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}
