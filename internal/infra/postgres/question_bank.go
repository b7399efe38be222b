package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-quiz-engine/internal/domain"
)

// QuestionBank serves raw questions from the trivia_questions table. It
// satisfies app.QuestionSource, so a session can run without reaching the
// public provider.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) FetchQuestions(ctx context.Context, categoryID int, difficulty domain.Difficulty, amount int) ([]domain.RawQuestion, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT question, correct_answer, incorrect_answers
		FROM trivia_questions
		WHERE category_id = $1 AND difficulty = $2
		ORDER BY random()
		LIMIT $3`, categoryID, string(difficulty), amount)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []domain.RawQuestion
	for rows.Next() {
		var q domain.RawQuestion
		if err := rows.Scan(&q.Question, &q.CorrectAnswer, &q.IncorrectAnswers); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("category %d/%s: %w", categoryID, difficulty, domain.ErrNoQuestionsAvailable)
	}
	return out, nil
}

// Count returns how many questions the bank holds for a category and difficulty.
func (b *QuestionBank) Count(ctx context.Context, categoryID int, difficulty domain.Difficulty) (int, error) {
	var n int
	err := b.pool.QueryRow(ctx,
		`SELECT count(*) FROM trivia_questions WHERE category_id = $1 AND difficulty = $2`,
		categoryID, string(difficulty)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}
