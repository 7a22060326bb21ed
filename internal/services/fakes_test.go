package services

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/repositories"
)

// In-memory repository fakes implementing the same contracts as the
// postgres layer, used by the service tests below.

type fakeRepository struct {
	quiz    *fakeQuizRepo
	bank    *fakeBankRepo
	session *fakeSessionRepo
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		quiz:    &fakeQuizRepo{quizzes: make(map[string]*models.Quiz)},
		bank:    &fakeBankRepo{},
		session: &fakeSessionRepo{rows: make(map[string]*models.SessionProgress)},
	}
}

func (r *fakeRepository) Quiz() repositories.QuizRepository                { return r.quiz }
func (r *fakeRepository) QuestionBank() repositories.QuestionBankRepository { return r.bank }
func (r *fakeRepository) Session() repositories.SessionRepository           { return r.session }

func (r *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func (r *fakeRepository) Ping(ctx context.Context) error { return nil }
func (r *fakeRepository) Close() error                   { return nil }

// ===== QUIZ =====

type fakeQuizRepo struct {
	quizzes map[string]*models.Quiz
	nextID  uint
}

func (f *fakeQuizRepo) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	f.nextID++
	quiz.ID = f.nextID
	f.quizzes[quiz.PublicID] = quiz
	return nil
}

func (f *fakeQuizRepo) GetByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*models.Quiz, error) {
	quiz, ok := f.quizzes[publicID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return quiz, nil
}

func (f *fakeQuizRepo) GetByPublicIDForUpdate(ctx context.Context, tx *gorm.DB, publicID string) (*models.Quiz, error) {
	return f.GetByPublicID(ctx, tx, publicID)
}

func (f *fakeQuizRepo) UpdateBlockList(ctx context.Context, tx *gorm.DB, quiz *models.Quiz, list datatypes.JSON) error {
	stored, ok := f.quizzes[quiz.PublicID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.BlockList = list
	return nil
}

// ===== QUESTION BANK =====

type fakeBankRepo struct {
	buckets []*models.QuestionBucket
	nextID  uint
}

func (f *fakeBankRepo) CreateBucket(ctx context.Context, tx *gorm.DB, bucket *models.QuestionBucket) error {
	f.nextID++
	bucket.ID = f.nextID
	f.buckets = append(f.buckets, bucket)
	return nil
}

func (f *fakeBankRepo) GetBucket(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBucket, error) {
	for _, bucket := range f.buckets {
		if bucket.ID == id {
			return bucket, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBankRepo) ListBucketsBySubcategory(ctx context.Context, tx *gorm.DB, subcategory string) ([]*models.QuestionBucket, error) {
	var out []*models.QuestionBucket
	for _, bucket := range f.buckets {
		if bucket.Subcategory == subcategory {
			out = append(out, bucket)
		}
	}
	return out, nil
}

func (f *fakeBankRepo) AppendQuestions(ctx context.Context, tx *gorm.DB, bucketID uint, questions []models.BankQuestion) error {
	bucket, err := f.GetBucket(ctx, tx, bucketID)
	if err != nil {
		return err
	}
	existing, err := bucket.DecodeQuestions()
	if err != nil {
		return err
	}
	data, err := json.Marshal(append(existing, questions...))
	if err != nil {
		return err
	}
	bucket.Questions = datatypes.JSON(data)
	return nil
}

// addBucket is a test helper seeding one bucket of text questions with JSON
// array options.
func (f *fakeBankRepo) addBucket(category, subcategory string, questions []models.BankQuestion) {
	data, err := json.Marshal(questions)
	if err != nil {
		panic(err)
	}
	f.nextID++
	f.buckets = append(f.buckets, &models.QuestionBucket{
		ID:          f.nextID,
		Category:    category,
		Subcategory: subcategory,
		Questions:   datatypes.JSON(data),
	})
}

// textQuestion builds a bank question with JSON-array options.
func textQuestion(prompt string, options []string, answer string) models.BankQuestion {
	raw, err := json.Marshal(options)
	if err != nil {
		panic(err)
	}
	return models.BankQuestion{
		Prompt:  prompt,
		Options: json.RawMessage(raw),
		Answer:  answer,
		Kind:    models.KindText,
	}
}

// ===== SESSION PROGRESS =====

type fakeSessionRepo struct {
	rows   map[string]*models.SessionProgress
	nextID uint
	clock  func() time.Time
}

func (f *fakeSessionRepo) now() time.Time {
	if f.clock != nil {
		return f.clock()
	}
	return time.Now()
}

func sessionKey(studentID string, quizID uint) string {
	return fmt.Sprintf("%d|%s", quizID, studentID)
}

func (f *fakeSessionRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, studentID string, quizID uint, initialTimeLeft int) (*models.SessionProgress, bool, error) {
	key := sessionKey(studentID, quizID)
	if existing, ok := f.rows[key]; ok {
		row := *existing
		return &row, false, nil
	}
	f.nextID++
	progress := &models.SessionProgress{
		ID:        f.nextID,
		QuizID:    quizID,
		StudentID: studentID,
		TimeLeft:  initialTimeLeft,
		CreatedAt: f.now(),
		UpdatedAt: f.now(),
	}
	f.rows[key] = progress
	return progress, true, nil
}

// Get hands back a copy, the way a real row scan would: callers holding a
// stale snapshot must not observe later writes through it.
func (f *fakeSessionRepo) Get(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.SessionProgress, error) {
	progress, ok := f.rows[sessionKey(studentID, quizID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	row := *progress
	return &row, nil
}

func (f *fakeSessionRepo) PersistQuestionMap(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, questionMap map[string]models.AssignedQuestion) error {
	stored := f.rows[sessionKey(progress.StudentID, progress.QuizID)]
	if stored.HasQuestionMap() {
		existing, err := stored.DecodeQuestionMap()
		if err != nil {
			return err
		}
		if reflect.DeepEqual(existing, questionMap) {
			return nil
		}
		return repositories.ErrQuestionMapConflict
	}
	data, err := json.Marshal(questionMap)
	if err != nil {
		return err
	}
	stored.QuestionMap = datatypes.JSON(data)
	stored.UpdatedAt = f.now()
	progress.QuestionMap = stored.QuestionMap
	return nil
}

func (f *fakeSessionRepo) ApplyTimePenalty(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, deltaSeconds int) error {
	stored := f.rows[sessionKey(progress.StudentID, progress.QuizID)]
	stored.TimeLeft -= deltaSeconds
	if stored.TimeLeft < 0 {
		stored.TimeLeft = 0
	}
	stored.UpdatedAt = f.now()
	progress.TimeLeft = stored.TimeLeft
	return nil
}

// SaveAnswer merges against the stored row, not the caller's snapshot,
// matching the server-side jsonb_set merge of the postgres implementation.
func (f *fakeSessionRepo) SaveAnswer(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, questionID, selectedOption string, position int) error {
	stored := f.rows[sessionKey(progress.StudentID, progress.QuizID)]
	answers, err := stored.DecodeAnswers()
	if err != nil {
		return err
	}
	if answers == nil {
		answers = make(map[string]string)
	}
	answers[questionID] = selectedOption

	data, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	stored.Answers = datatypes.JSON(data)
	stored.Position = position
	stored.UpdatedAt = f.now()
	progress.Answers = stored.Answers
	progress.Position = position
	return nil
}

func (f *fakeSessionRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress) error {
	stored := f.rows[sessionKey(progress.StudentID, progress.QuizID)]
	stored.Completed = true
	stored.UpdatedAt = f.now()
	progress.Completed = true
	return nil
}

func (f *fakeSessionRepo) DeleteAbandoned(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error) {
	var deleted int64
	for key, row := range f.rows {
		if !row.Completed && row.UpdatedAt.Before(olderThan) {
			delete(f.rows, key)
			deleted++
		}
	}
	return deleted, nil
}
