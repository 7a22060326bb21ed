package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quizforge/quiz-session-service/internal/events"
	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/repositories"
	"github.com/quizforge/quiz-session-service/internal/validator"
)

// DefaultBlockSeconds is the penalty fallback when an expired block entry
// has no creation timestamp (legacy rows); the full configured lockout is
// charged in that case.
const DefaultBlockSeconds = 30

type sessionService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.Publisher
	now       func() time.Time
}

func NewSessionService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher) SessionService {
	return &sessionService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		now:       time.Now,
	}
}

// FetchQuiz sequences one fetch request. The order is load-bearing:
// get-or-create progress, block check, completion check, reuse-or-generate,
// penalty application, response assembly. Assignment never starts while the
// student is blocked, and no question map is persisted for a quiz whose
// selections yield zero questions.
func (s *sessionService) FetchQuiz(ctx context.Context, quizPublicID, studentID string) (*FetchQuizResponse, error) {
	s.logger.Info("Fetching quiz session",
		"quiz_id", quizPublicID,
		"student_id", studentID)

	quiz, err := s.repo.Quiz().GetByPublicID(ctx, nil, quizPublicID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	selections, err := quiz.DecodeSelections()
	if err != nil {
		return nil, err
	}

	progress, created, err := s.repo.Session().GetOrCreate(ctx, nil, studentID, quiz.ID, quiz.TimeLimit*60)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create progress: %w", err)
	}
	if created {
		s.logger.Info("Session progress created",
			"quiz_id", quizPublicID,
			"student_id", studentID,
			"time_left", progress.TimeLeft)
		s.publishCreated(ctx, quizPublicID, studentID, progress.TimeLeft)
	}

	blockStatus, penalty, err := s.resolveBlockState(ctx, quizPublicID, studentID, progress)
	if err != nil {
		return nil, err
	}
	if penalty > 0 {
		s.logger.Info("Applied expired-block penalty",
			"quiz_id", quizPublicID,
			"student_id", studentID,
			"penalty_seconds", penalty,
			"time_left", progress.TimeLeft)
		s.publishPenalty(ctx, quizPublicID, studentID, penalty, progress.TimeLeft)
	}

	if blockStatus.Blocked {
		// Blocked students see whatever is already locked in, but nothing
		// new is assigned and no interaction is granted.
		view, err := s.lockedInView(ctx, quiz, studentID, selections, progress)
		if err != nil {
			return nil, err
		}
		return s.buildResponse(blockStatus, view, progress)
	}

	if progress.Completed {
		return s.buildResponse(blockStatus, nil, progress)
	}

	if progress.HasQuestionMap() {
		view, err := s.lockedInView(ctx, quiz, studentID, selections, progress)
		if err != nil {
			return nil, err
		}
		return s.buildResponse(blockStatus, view, progress)
	}

	// First-ever access: generate and lock in the assignment.
	if len(selections) == 0 {
		return nil, NewConfigurationError(quizPublicID, "quiz has no selections")
	}

	result, err := Assign(ctx, s.repo.QuestionBank(), quizPublicID, studentID, selections)
	if err != nil {
		return nil, err
	}
	if result.Total == 0 {
		return nil, NewConfigurationError(quizPublicID, "selections yield zero assignable questions")
	}
	if shortfalls := result.Shortfalls(); len(shortfalls) > 0 {
		s.logger.Warn("Partial fulfillment of quiz selections",
			"quiz_id", quizPublicID,
			"student_id", studentID,
			"shortfalls", shortfalls)
	}

	if err := s.repo.Session().PersistQuestionMap(ctx, nil, progress, result.QuestionMap); err != nil {
		return nil, fmt.Errorf("failed to persist question map: %w", err)
	}

	view, err := s.viewFromGroups(result.Groups, progress)
	if err != nil {
		return nil, err
	}
	return s.buildResponse(blockStatus, view, progress)
}

// resolveBlockState runs the expiry filter over the quiz's block list in one
// transaction. If the student's entry just expired while a question map is
// already locked in, the elapsed lockout time is deducted from the remaining
// quiz time in the same transaction, so the penalty lands exactly once: a
// second reader finds the entry already filtered and persisted away.
func (s *sessionService) resolveBlockState(ctx context.Context, quizPublicID, studentID string, progress *models.SessionProgress) (*BlockStatus, int, error) {
	status := &BlockStatus{Blocked: false}
	penalty := 0

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		quiz, err := txRepo.Quiz().GetByPublicIDForUpdate(ctx, nil, quizPublicID)
		if err != nil {
			return fmt.Errorf("failed to lock quiz row: %w", err)
		}

		entries, err := quiz.DecodeBlockList()
		if err != nil {
			return err
		}

		now := s.now()
		active, expired := partitionBlockEntries(entries, now)

		if entry, ok := findBlockEntry(active, studentID); ok {
			status = &BlockStatus{
				Blocked:          true,
				RemainingSeconds: entry.Remaining(now),
				ExpiresAt:        entry.ExpiresAt,
			}
		}

		if entry, ok := findBlockEntry(expired, studentID); ok && progress.HasQuestionMap() && !progress.Completed {
			elapsed := DefaultBlockSeconds
			if !entry.CreatedAt.IsZero() {
				elapsed = int(now.Sub(entry.CreatedAt).Seconds())
			}
			if err := txRepo.Session().ApplyTimePenalty(ctx, nil, progress, elapsed); err != nil {
				return err
			}
			penalty = elapsed
		}

		if len(expired) > 0 {
			if err := persistBlockList(ctx, txRepo, quiz, active); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return status, penalty, nil
}

// lockedInView rebuilds the per-subcategory view from the persisted question
// map. Assignment is a pure function of (quiz, student), so re-running it
// reproduces the original group order; the locked map stays authoritative
// for which questions (and which copies) are shown. Locked questions the
// re-run no longer produces (bank content drifted since first access) are
// appended to their subcategory group rather than dropped.
func (s *sessionService) lockedInView(ctx context.Context, quiz *models.Quiz, studentID string, selections []models.QuizSelection, progress *models.SessionProgress) ([]AssignmentGroupView, error) {
	questionMap, err := progress.DecodeQuestionMap()
	if err != nil {
		return nil, err
	}
	if len(questionMap) == 0 {
		return nil, nil
	}

	answers, err := progress.DecodeAnswers()
	if err != nil {
		return nil, err
	}

	fresh, err := Assign(ctx, s.repo.QuestionBank(), quiz.PublicID, studentID, selections)
	if err != nil {
		return nil, err
	}

	used := make(map[string]struct{})
	groupIndex := make(map[string]int)
	var views []AssignmentGroupView

	for _, group := range fresh.Groups {
		view := AssignmentGroupView{Subcategory: group.Subcategory}
		for _, question := range group.Questions {
			locked, ok := questionMap[question.ID]
			if !ok {
				continue
			}
			view.Questions = append(view.Questions, questionView(locked, answers))
			used[question.ID] = struct{}{}
		}
		groupIndex[group.Subcategory] = len(views)
		views = append(views, view)
	}

	for id, locked := range questionMap {
		if _, ok := used[id]; ok {
			continue
		}
		idx, ok := groupIndex[locked.Subcategory]
		if !ok {
			views = append(views, AssignmentGroupView{Subcategory: locked.Subcategory})
			idx = len(views) - 1
			groupIndex[locked.Subcategory] = idx
		}
		views[idx].Questions = append(views[idx].Questions, questionView(locked, answers))
	}

	return views, nil
}

func (s *sessionService) viewFromGroups(groups []SubcategoryAssignment, progress *models.SessionProgress) ([]AssignmentGroupView, error) {
	answers, err := progress.DecodeAnswers()
	if err != nil {
		return nil, err
	}

	views := make([]AssignmentGroupView, 0, len(groups))
	for _, group := range groups {
		view := AssignmentGroupView{Subcategory: group.Subcategory}
		for _, question := range group.Questions {
			view.Questions = append(view.Questions, questionView(question, answers))
		}
		views = append(views, view)
	}
	return views, nil
}

// questionView copies the display fields of an assigned question. The
// correct answer stays server-side.
func questionView(question models.AssignedQuestion, answers map[string]string) QuestionView {
	view := QuestionView{
		ID:          question.ID,
		Prompt:      question.Prompt,
		Options:     question.Options,
		Image:       question.Image,
		Description: question.Description,
		Kind:        question.Kind,
	}
	if selected, ok := answers[question.ID]; ok {
		view.SelectedOption = &selected
	}
	return view
}

func (s *sessionService) buildResponse(blockStatus *BlockStatus, assignment []AssignmentGroupView, progress *models.SessionProgress) (*FetchQuizResponse, error) {
	answers, err := progress.DecodeAnswers()
	if err != nil {
		return nil, err
	}

	answerViews := make([]AnswerView, 0, len(answers))
	for questionID, selected := range answers {
		answerViews = append(answerViews, AnswerView{QuestionID: questionID, SelectedOption: selected})
	}

	response := &FetchQuizResponse{
		Blocked:          blockStatus.Blocked,
		RemainingSeconds: blockStatus.RemainingSeconds,
		IsCompleted:      progress.Completed,
		Assignment:       assignment,
		Progress: ProgressView{
			Position:        progress.Position,
			TimeLeftSeconds: progress.TimeLeft,
			Completed:       progress.Completed,
			Answers:         answerViews,
		},
		ServerTimeMs: s.now().UnixMilli(),
	}
	if blockStatus.Blocked {
		response.ExpiresAt = blockStatus.ExpiresAt.UnixMilli()
	}
	return response, nil
}

// SubmitAnswer records a selected option against the locked-in map. Grading
// and scoring belong to a different service; only the selection is stored so
// later fetches can echo it back.
func (s *sessionService) SubmitAnswer(ctx context.Context, quizPublicID, studentID string, req *SubmitAnswerRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	quiz, err := s.repo.Quiz().GetByPublicID(ctx, nil, quizPublicID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to get quiz: %w", err)
	}

	progress, err := s.repo.Session().Get(ctx, nil, studentID, quiz.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrProgressNotFound
		}
		return fmt.Errorf("failed to get progress: %w", err)
	}

	// The lockout gates every student interaction, not just fetches: an
	// actively blocked student cannot keep answering through this endpoint,
	// and a lapsed block settles its penalty here the same way it would on
	// the next fetch.
	blockStatus, penalty, err := s.resolveBlockState(ctx, quizPublicID, studentID, progress)
	if err != nil {
		return err
	}
	if penalty > 0 {
		s.logger.Info("Applied expired-block penalty",
			"quiz_id", quizPublicID,
			"student_id", studentID,
			"penalty_seconds", penalty,
			"time_left", progress.TimeLeft)
		s.publishPenalty(ctx, quizPublicID, studentID, penalty, progress.TimeLeft)
	}
	if blockStatus.Blocked {
		return ErrStudentBlocked
	}

	if progress.Completed {
		return ErrSessionCompleted
	}

	questionMap, err := progress.DecodeQuestionMap()
	if err != nil {
		return err
	}
	question, ok := questionMap[req.QuestionID]
	if !ok {
		return ErrQuestionNotFound
	}

	optionValid := false
	for _, opt := range question.Options {
		if opt == req.SelectedOption {
			optionValid = true
			break
		}
	}
	if !optionValid {
		return fmt.Errorf("selected option is not part of question %s", req.QuestionID)
	}

	position := progress.Position + 1
	if req.Position != nil {
		position = *req.Position
	}

	if err := s.repo.Session().SaveAnswer(ctx, nil, progress, req.QuestionID, req.SelectedOption, position); err != nil {
		return err
	}

	if req.Completed {
		if err := s.repo.Session().MarkCompleted(ctx, nil, progress); err != nil {
			return err
		}
	}
	return nil
}

// CleanupAbandoned is invoked by the external retention sweep.
func (s *sessionService) CleanupAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	deleted, err := s.repo.Session().DeleteAbandoned(ctx, nil, olderThan)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("Deleted abandoned sessions", "count", deleted, "older_than", olderThan)
	}
	return deleted, nil
}

func (s *sessionService) publishCreated(ctx context.Context, quizPublicID, studentID string, timeLeft int) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.TypeSessionCreated, events.SessionCreatedEvent{
		QuizID:    quizPublicID,
		StudentID: studentID,
		TimeLeft:  timeLeft,
	})
	if err != nil {
		s.logger.Error("Failed to publish session created event",
			"quiz_id", quizPublicID,
			"student_id", studentID,
			"error", err)
	}
}

func (s *sessionService) publishPenalty(ctx context.Context, quizPublicID, studentID string, penaltySeconds, timeLeft int) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.TypePenaltyApplied, events.PenaltyAppliedEvent{
		QuizID:         quizPublicID,
		StudentID:      studentID,
		PenaltySeconds: penaltySeconds,
		TimeLeft:       timeLeft,
	})
	if err != nil {
		s.logger.Error("Failed to publish penalty event",
			"quiz_id", quizPublicID,
			"student_id", studentID,
			"error", err)
	}
}
