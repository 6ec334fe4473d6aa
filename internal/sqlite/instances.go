package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
)

const instanceNamespace = "-inst"

// Columns older deployments may lack. Their values are dropped rather
// than failing the write when the table does not have them.
var optionalInstanceColumns = []string{"description", "location", "raw_payload"}

// UpsertInstances writes one chunk of instances keyed by
// (feed_id, instance_key), replacing every payload column on conflict so
// removed attributes propagate as cleared.
func (r *Repo) UpsertInstances(ctx context.Context, instances []calsync.Instance) (int, error) {
	if len(instances) == 0 {
		return 0, nil
	}

	caps, err := r.capabilities(ctx)
	if err != nil {
		return 0, fmt.Errorf("error detecting instance columns: %s", err)
	}

	cols := []string{"id", "feed_id", "external_id", "instance_key", "title", "starts_at", "ends_at", "all_day", "updated_at"}
	for _, col := range optionalInstanceColumns {
		if caps.has(col) {
			cols = append(cols, col)
		}
	}

	now := time.Now().UTC()
	ib := sq.Insert("instances").Columns(cols...)
	for _, inst := range instances {
		vals := make([]any, 0, len(cols))
		for _, col := range cols {
			vals = append(vals, instanceValue(inst, col, now))
		}
		ib = ib.Values(vals...)
	}
	ib = ib.Suffix(conflictClause(cols))

	query, args, err := ib.ToSql()
	if err != nil {
		return 0, fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("error upserting instances: %s", err)
	}

	return len(instances), nil
}

func instanceValue(inst calsync.Instance, col string, now time.Time) any {
	switch col {
	case "id":
		return fmt.Sprintf("%s%s", uuid.NewString(), instanceNamespace)
	case "feed_id":
		return inst.FeedID
	case "external_id":
		return inst.ExternalID
	case "instance_key":
		return inst.InstanceKey
	case "title":
		return inst.Title
	case "description":
		return inst.Description
	case "location":
		return inst.Location
	case "starts_at":
		return inst.StartsAt.UTC().Truncate(time.Second)
	case "ends_at":
		return inst.EndsAt.UTC().Truncate(time.Second)
	case "all_day":
		return inst.AllDay
	case "raw_payload":
		return inst.RawPayload
	case "updated_at":
		return now
	default:
		return nil
	}
}

// conflictClause replaces every column except the identity ones, keeping
// the existing row id and created_at.
func conflictClause(cols []string) string {
	var sets []string
	for _, col := range cols {
		switch col {
		case "id", "feed_id", "instance_key":
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	return fmt.Sprintf("ON CONFLICT (feed_id, instance_key) DO UPDATE SET %s", strings.Join(sets, ", "))
}

// InstancesInWindow selects the feed's stored instances whose start lies
// inside the half-open window.
func (r *Repo) InstancesInWindow(ctx context.Context, feedID string, w calsync.Window) ([]calsync.Instance, error) {
	query, args, err := sq.Select("*").
		From("instances").
		Where(sq.Eq{"feed_id": feedID}).
		Where(sq.GtOrEq{"starts_at": w.Start.UTC().Truncate(time.Second)}).
		Where(sq.Lt{"starts_at": w.End.UTC().Truncate(time.Second)}).
		OrderBy("starts_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var instances []calsync.Instance
	if err := r.db.SelectContext(ctx, &instances, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting instances: %s", err)
	}

	return instances, nil
}

func (r *Repo) DeleteInstances(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sq.Delete("instances").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error deleting instances: %s", err)
	}

	return nil
}
