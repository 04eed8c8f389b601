package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"broadcast-quiz-service/internal/clock"
	"broadcast-quiz-service/internal/domain"
	"broadcast-quiz-service/internal/schedule"
	"go.uber.org/zap"
)

// ParticipantStore persists participants and their answers (in-memory, Postgres, etc).
type ParticipantStore interface {
	Register(ctx context.Context, p domain.Participant) error
	ListIDs(ctx context.Context) ([]string, error)
	HasAnswered(ctx context.Context, participantID string, stageID int) (bool, error)
	// SaveAnswer returns domain.ErrAlreadyAnswered when the pair already has an answer.
	SaveAnswer(ctx context.Context, a domain.Answer) error
	Stats(ctx context.Context, participantID string) (domain.Stats, error)
	FinalAnswers(ctx context.Context) ([]domain.FinalAnswer, error)
}

// StateRepository tracks each participant's conversation state.
type StateRepository interface {
	Get(ctx context.Context, participantID string) (domain.ConversationState, error)
	Set(ctx context.Context, participantID string, state domain.ConversationState) error
}

// Options carries campaign texts and operator settings.
type Options struct {
	WelcomeText  string
	WelcomeMedia *domain.Media
	Rules        string
	Admins       []string
	Status       *StatusReporter
	// StatusLimit caps the final answers listed by the admin command.
	StatusLimit int
}

// QuizService is the per-participant answer state machine.
type QuizService struct {
	schedule     *schedule.Schedule
	participants ParticipantStore
	states       StateRepository
	alerts       Alerter
	clock        clock.Clock
	log          *zap.Logger
	opts         Options
	admins       map[string]struct{}
}

func NewQuizService(sched *schedule.Schedule, participants ParticipantStore, states StateRepository, alerts Alerter, clk clock.Clock, log *zap.Logger, opts Options) *QuizService {
	if alerts == nil {
		alerts = nopAlerter{}
	}
	if opts.WelcomeText == "" {
		opts.WelcomeText = msgWelcome
	}
	if opts.Rules == "" {
		opts.Rules = msgRules
	}
	if opts.StatusLimit <= 0 {
		opts.StatusLimit = 300
	}
	admins := make(map[string]struct{}, len(opts.Admins))
	for _, id := range opts.Admins {
		admins[id] = struct{}{}
	}
	return &QuizService{
		schedule:     sched,
		participants: participants,
		states:       states,
		alerts:       alerts,
		clock:        clk,
		log:          log,
		opts:         opts,
		admins:       admins,
	}
}

// Start greets the participant and moves them into registration.
func (s *QuizService) Start(ctx context.Context, participantID string) (domain.Reply, error) {
	var reply domain.Reply
	if s.opts.WelcomeMedia != nil {
		media := *s.opts.WelcomeMedia
		reply.Append(domain.Outbound{Media: &media})
	}
	reply.Add(s.opts.WelcomeText, msgRegistrationPrompt)

	if err := s.states.Set(ctx, participantID, domain.StateRegistration); err != nil {
		s.log.Error("set registration state", zap.String("participant", participantID), zap.Error(err))
		s.alerts.BroadcastAdminAlert(ctx, fmt.Sprintf("Error in start command for %s: %v", participantID, err))
		return reply, err
	}
	return reply, nil
}

// Rules returns the campaign rules; it works in any state.
func (s *QuizService) Rules(context.Context) domain.Reply {
	var reply domain.Reply
	reply.Add(s.opts.Rules)
	return reply
}

// HandleText routes free text by the participant's conversation state.
func (s *QuizService) HandleText(ctx context.Context, participantID, text string) (domain.Reply, error) {
	state, err := s.states.Get(ctx, participantID)
	if err != nil {
		s.log.Error("load conversation state", zap.String("participant", participantID), zap.Error(err))
		state = domain.StateNone
	}
	switch state {
	case domain.StateRegistration:
		return s.Register(ctx, participantID, text)
	case domain.StateAnswering:
		return s.SubmitAnswer(ctx, participantID, domain.Submission{Value: text})
	default:
		var reply domain.Reply
		reply.Add(msgStartFirst)
		return reply, nil
	}
}

// HandleOption accepts a selection from a delivered option set.
func (s *QuizService) HandleOption(ctx context.Context, participantID, value, messageRef string) (domain.Reply, error) {
	state, err := s.states.Get(ctx, participantID)
	if err != nil {
		s.log.Error("load conversation state", zap.String("participant", participantID), zap.Error(err))
	}
	if state != domain.StateAnswering {
		var reply domain.Reply
		reply.Add(msgStartFirst)
		return reply, nil
	}
	return s.SubmitAnswer(ctx, participantID, domain.Submission{Value: value, FromOption: true, MessageRef: messageRef})
}

// Register parses "<name tokens...> <group>" and persists the participant.
// Malformed input re-prompts without a state change.
func (s *QuizService) Register(ctx context.Context, participantID, input string) (domain.Reply, error) {
	var reply domain.Reply
	tokens := strings.Fields(input)
	if len(tokens) < 2 {
		reply.Add(msgRegistrationRetry)
		return reply, nil
	}
	participant := domain.Participant{
		ID:           participantID,
		DisplayName:  strings.Join(tokens[:len(tokens)-1], " "),
		Group:        tokens[len(tokens)-1],
		RegisteredAt: s.clock.Now(),
	}

	if err := s.participants.Register(ctx, participant); err != nil {
		s.log.Error("register participant", zap.String("participant", participantID), zap.Error(err))
		s.alerts.BroadcastAdminAlert(ctx, fmt.Sprintf("Error during registration of %s: %v", participantID, err))
		reply.Add(msgRegistrationFailed)
		return reply, fmt.Errorf("register participant: %w", err)
	}
	if err := s.states.Set(ctx, participantID, domain.StateAnswering); err != nil {
		s.log.Error("set answering state", zap.String("participant", participantID), zap.Error(err))
		reply.Add(msgRegistrationFailed)
		return reply, fmt.Errorf("set answering state: %w", err)
	}
	reply.Add(msgRegistered)
	s.log.Info("participant registered",
		zap.String("participant", participantID),
		zap.String("name", participant.DisplayName),
		zap.String("group", participant.Group),
	)

	stage, ok := s.schedule.ActiveStage(s.clock.Now())
	switch {
	case !ok:
		reply.Add(msgNoActiveStage)
	case s.hasAnswered(ctx, participantID, stage.ID):
		reply.Add(msgAlreadyAnswered)
	default:
		reply.Append(stageMessages(stage, true)...)
	}

	s.alerts.BroadcastAdminAlert(ctx, fmt.Sprintf("New participant registered:\nName: %s\nOffice: %s", participant.DisplayName, participant.Group))
	return reply, nil
}

// SubmitAnswer accepts at most one answer per participant and stage. Blank
// input re-prompts and does not use up the answer.
func (s *QuizService) SubmitAnswer(ctx context.Context, participantID string, sub domain.Submission) (domain.Reply, error) {
	var reply domain.Reply
	now := s.clock.Now()
	stage, ok := s.schedule.ActiveStage(now)
	if !ok {
		reply.Add(msgNoActiveStage)
		return reply, nil
	}
	value := domain.NormalizeAnswer(sub.Value)
	if value == "" {
		reply.Add(msgEnterAnswer)
		return reply, nil
	}

	if s.hasAnswered(ctx, participantID, stage.ID) {
		return s.alreadyAnswered(stage), nil
	}
	if sub.FromOption && !stage.HasOption(sub.Value) {
		reply.Add(msgStaleOption)
		s.retractOptions(&reply, sub)
		return reply, nil
	}

	answer := domain.Answer{
		ParticipantID: participantID,
		StageID:       stage.ID,
		Value:         value,
		AnsweredAt:    now,
	}
	if stage.Scored() {
		correct := answer.Value == stage.Content.CorrectAnswer
		answer.Correct = &correct
	}

	if err := s.participants.SaveAnswer(ctx, answer); err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) {
			return s.alreadyAnswered(stage), nil
		}
		s.log.Error("save answer",
			zap.String("participant", participantID),
			zap.Int("stage", stage.ID),
			zap.Error(err),
		)
		s.alerts.BroadcastAdminAlert(ctx, fmt.Sprintf("Error processing answer from %s: %v", participantID, err))
		reply.Add(msgAnswerFailed)
		return reply, fmt.Errorf("save answer: %w", err)
	}

	s.log.Info("answer accepted",
		zap.String("participant", participantID),
		zap.Int("stage", stage.ID),
		zap.String("value", answer.Value),
		zap.Boolp("correct", answer.Correct),
	)

	switch {
	case answer.Correct == nil:
		reply.Add(stage.Content.AckText)
	case *answer.Correct:
		reply.Add(stage.Content.CorrectText)
		if stage.Content.BonusMedia != nil {
			media := *stage.Content.BonusMedia
			reply.Append(domain.Outbound{Media: &media})
		}
	default:
		reply.Add(stage.Content.IncorrectText)
	}
	s.retractOptions(&reply, sub)
	return reply, nil
}

// Hint reports the remaining wait or returns the hint of the open hint stage.
// Hints are not deduplicated.
func (s *QuizService) Hint(_ context.Context, participantID string) domain.Reply {
	var reply domain.Reply
	now := s.clock.Now()
	stage, ok := s.schedule.HintStage(now)
	if !ok {
		reply.Add(msgHintUnavailable)
		return reply
	}
	if remaining := stage.Hint.Delay - now.Sub(stage.Start); remaining > 0 {
		reply.Add(fmt.Sprintf(msgHintWait, int(remaining/time.Minute)))
		return reply
	}
	s.log.Debug("hint delivered", zap.String("participant", participantID), zap.Int("stage", stage.ID))
	reply.Add(stage.Hint.Text)
	return reply
}

// Stats reports the participant's answered and correct counts.
func (s *QuizService) Stats(ctx context.Context, participantID string) domain.Reply {
	stats, err := s.participants.Stats(ctx, participantID)
	if err != nil {
		s.log.Error("load participant stats", zap.String("participant", participantID), zap.Error(err))
		stats = domain.Stats{}
	}
	var reply domain.Reply
	reply.Add(fmt.Sprintf(msgStats, stats.Answered, stats.Correct))
	return reply
}

// Admin returns the operator status for admins and nothing for anyone else.
func (s *QuizService) Admin(ctx context.Context, participantID string) domain.Reply {
	var reply domain.Reply
	if !s.IsAdmin(participantID) || s.opts.Status == nil {
		return reply
	}
	status, err := s.opts.Status.Status(ctx, s.opts.StatusLimit)
	if err != nil {
		s.log.Error("load admin status", zap.Error(err))
		reply.Add(msgStatusFailed)
		return reply
	}
	reply.Add(FormatStatus(status, s.clock))
	return reply
}

// IsAdmin reports whether the participant is a configured operator.
func (s *QuizService) IsAdmin(participantID string) bool {
	_, ok := s.admins[participantID]
	return ok
}

// hasAnswered degrades to false on store errors; the store's uniqueness
// guarantee still rejects a duplicate insert.
func (s *QuizService) hasAnswered(ctx context.Context, participantID string, stageID int) bool {
	answered, err := s.participants.HasAnswered(ctx, participantID, stageID)
	if err != nil {
		s.log.Error("check answered", zap.String("participant", participantID), zap.Int("stage", stageID), zap.Error(err))
		return false
	}
	return answered
}

func (s *QuizService) alreadyAnswered(stage domain.ScheduleItem) domain.Reply {
	var reply domain.Reply
	if next, ok := s.schedule.NextStageAfter(stage.ID); ok {
		at := next.Start.In(s.clock.Now().Location()).Format(nextStageLayout)
		reply.Add(fmt.Sprintf(msgAlreadyAnsweredNext, at))
		return reply
	}
	reply.Add(msgAlreadyAnswered)
	return reply
}

func (s *QuizService) retractOptions(reply *domain.Reply, sub domain.Submission) {
	if sub.FromOption && sub.MessageRef != "" {
		reply.Append(domain.Outbound{ClearRef: sub.MessageRef})
	}
}
