package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"broadcast-quiz-service/internal/domain"
	"broadcast-quiz-service/internal/schedule"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ScheduleLoader loads schedule items stored as JSONB item specs.
type ScheduleLoader struct {
	pool *pgxpool.Pool
}

func NewScheduleLoader(pool *pgxpool.Pool) *ScheduleLoader {
	return &ScheduleLoader{pool: pool}
}

// LoadItems reads every row of schedule_items and compiles them like a
// schedule file; relative times resolve against boot.
func (l *ScheduleLoader) LoadItems(ctx context.Context, boot time.Time, loc *time.Location) ([]domain.ScheduleItem, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM schedule_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	defer rows.Close()

	var specs []schedule.ItemSpec
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan schedule item: %w", err)
		}
		var spec schedule.ItemSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return nil, fmt.Errorf("unmarshal schedule item: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return schedule.CompileItems(specs, boot, loc)
}
