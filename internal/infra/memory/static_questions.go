package memory

import (
	"context"
	"sort"

	"quiz-live-service/internal/domain"
)

// StaticQuestionRepository serves questions from an in-memory slice.
// It doubles as a QuestionLoader so the caching layers can wrap it in
// tests, and as a direct app.QuestionRepository for demo mode.
type StaticQuestionRepository struct {
	bySet map[int64][]domain.Question
	byID  map[int64]domain.Question
}

func NewStaticQuestionRepository(questions []domain.Question) *StaticQuestionRepository {
	repo := &StaticQuestionRepository{
		bySet: make(map[int64][]domain.Question),
		byID:  make(map[int64]domain.Question),
	}
	for _, q := range questions {
		repo.bySet[q.QuestionSetID] = append(repo.bySet[q.QuestionSetID], q)
		repo.byID[q.ID] = q
	}
	for setID := range repo.bySet {
		set := repo.bySet[setID]
		sort.Slice(set, func(i, j int) bool { return set[i].Position < set[j].Position })
	}
	return repo
}

func (r *StaticQuestionRepository) QuestionByPosition(_ context.Context, questionSetID int64, position int) (domain.Question, error) {
	for _, q := range r.bySet[questionSetID] {
		if q.Position == position {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (r *StaticQuestionRepository) QuestionByID(_ context.Context, questionID int64) (domain.Question, error) {
	if q, ok := r.byID[questionID]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (r *StaticQuestionRepository) CountQuestions(_ context.Context, questionSetID int64) (int, error) {
	return len(r.bySet[questionSetID]), nil
}

func (r *StaticQuestionRepository) LoadQuestionSet(_ context.Context, questionSetID int64) ([]domain.Question, error) {
	set, ok := r.bySet[questionSetID]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	return set, nil
}

func (r *StaticQuestionRepository) LoadQuestion(ctx context.Context, questionID int64) (domain.Question, error) {
	return r.QuestionByID(ctx, questionID)
}
