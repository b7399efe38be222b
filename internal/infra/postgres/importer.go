package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"trivia-quiz-engine/internal/domain"
)

type bankQuestion struct {
	bun.BaseModel `bun:"table:trivia_questions"`

	ID               int64     `bun:"id,pk,autoincrement"`
	CategoryID       int       `bun:"category_id,notnull"`
	Difficulty       string    `bun:"difficulty,notnull"`
	Question         string    `bun:"question,notnull"`
	CorrectAnswer    string    `bun:"correct_answer,notnull"`
	IncorrectAnswers []string  `bun:"incorrect_answers,array"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Importer stores provider records in the question bank. Records are kept in
// their raw, entity-encoded form; decoding happens when a set is built.
type Importer struct {
	db bun.IDB
}

func NewImporter(db bun.IDB) *Importer {
	return &Importer{db: db}
}

// Import inserts records for a category and difficulty, skipping questions the
// bank already holds. It returns the number of new rows.
func (i *Importer) Import(ctx context.Context, categoryID int, difficulty domain.Difficulty, records []domain.RawQuestion) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	res, err := i.insertQuery(categoryID, difficulty, records).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert questions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (i *Importer) insertQuery(categoryID int, difficulty domain.Difficulty, records []domain.RawQuestion) *bun.InsertQuery {
	rows := make([]bankQuestion, 0, len(records))
	for _, r := range records {
		rows = append(rows, bankQuestion{
			CategoryID:       categoryID,
			Difficulty:       string(difficulty),
			Question:         r.Question,
			CorrectAnswer:    r.CorrectAnswer,
			IncorrectAnswers: r.IncorrectAnswers,
		})
	}
	return i.db.NewInsert().
		Model(&rows).
		On("CONFLICT (category_id, difficulty, question) DO NOTHING")
}
