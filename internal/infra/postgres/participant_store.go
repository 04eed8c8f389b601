package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"broadcast-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type participantRow struct {
	bun.BaseModel `bun:"table:participants"`

	ID           string    `bun:"id,pk"`
	DisplayName  string    `bun:"display_name,notnull"`
	GroupTag     string    `bun:"group_tag,notnull"`
	RegisteredAt time.Time `bun:"registered_at,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ParticipantID string    `bun:"participant_id,notnull"`
	StageID       int       `bun:"stage_id,notnull"`
	Value         string    `bun:"value,notnull"`
	Correct       *bool     `bun:"correct"`
	AnsweredAt    time.Time `bun:"answered_at,notnull"`
}

// ParticipantStore persists participants and answers through bun. The
// answers table carries UNIQUE(participant_id, stage_id), which is what makes
// answer acceptance exactly-once across concurrent submissions.
type ParticipantStore struct {
	db           *bun.DB
	finalStageID int
}

// NewParticipantStore creates a store; finalStageID (zero for none) is kept
// out of stats and listed by FinalAnswers.
func NewParticipantStore(db *bun.DB, finalStageID int) *ParticipantStore {
	return &ParticipantStore{db: db, finalStageID: finalStageID}
}

func (s *ParticipantStore) Register(ctx context.Context, p domain.Participant) error {
	row := participantRow{
		ID:           p.ID,
		DisplayName:  p.DisplayName,
		GroupTag:     p.Group,
		RegisteredAt: p.RegisteredAt,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("group_tag = EXCLUDED.group_tag").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

func (s *ParticipantStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*participantRow)(nil)).
		Column("id").
		Order("registered_at ASC", "id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return ids, nil
}

// Participant returns a registered participant.
func (s *ParticipantStore) Participant(ctx context.Context, id string) (domain.Participant, error) {
	var row participantRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load participant: %w", err)
	}
	return domain.Participant{
		ID:           row.ID,
		DisplayName:  row.DisplayName,
		Group:        row.GroupTag,
		RegisteredAt: row.RegisteredAt,
	}, nil
}

func (s *ParticipantStore) HasAnswered(ctx context.Context, participantID string, stageID int) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*answerRow)(nil)).
		Where("participant_id = ?", participantID).
		Where("stage_id = ?", stageID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check answer: %w", err)
	}
	return exists, nil
}

func (s *ParticipantStore) SaveAnswer(ctx context.Context, a domain.Answer) error {
	row := answerRow{
		ParticipantID: a.ParticipantID,
		StageID:       a.StageID,
		Value:         a.Value,
		Correct:       a.Correct,
		AnsweredAt:    a.AnsweredAt,
	}
	res, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (participant_id, stage_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAlreadyAnswered
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyAnswered
	}
	return nil
}

func (s *ParticipantStore) Stats(ctx context.Context, participantID string) (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.NewSelect().
		Model((*answerRow)(nil)).
		ColumnExpr("count(*)").
		ColumnExpr("count(*) FILTER (WHERE correct)").
		Where("participant_id = ?", participantID).
		Where("stage_id <> ?", s.finalStageID).
		Scan(ctx, &stats.Answered, &stats.Correct)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("participant stats: %w", err)
	}
	return stats, nil
}

func (s *ParticipantStore) FinalAnswers(ctx context.Context) ([]domain.FinalAnswer, error) {
	if s.finalStageID == 0 {
		return nil, nil
	}
	var rows []answerRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("stage_id = ?", s.finalStageID).
		Order("answered_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list final answers: %w", err)
	}
	out := make([]domain.FinalAnswer, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.FinalAnswer{
			ParticipantID: row.ParticipantID,
			Value:         row.Value,
			AnsweredAt:    row.AnsweredAt,
		})
	}
	return out, nil
}
