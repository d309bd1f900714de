package papergen

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB persists completed question papers for display and re-download.
type DB struct {
	db *sql.DB
}

// PaperRecord is one stored question paper run.
type PaperRecord struct {
	ID             string    `json:"id"`
	Class          string    `json:"class"`
	Subject        string    `json:"subject"`
	Chapter        string    `json:"chapter"`
	Topic          string    `json:"topic"`
	NumQuestions   int       `json:"num_questions"`
	Difficulty     int       `json:"difficulty"`
	QuestionType   string    `json:"question_type"`
	ChoiceType     string    `json:"choice_type"`
	RawCount       int       `json:"raw_count"`
	ValidatedCount int       `json:"validated_count"`
	RetryCount     int       `json:"retry_count"`
	Output         string    `json:"output"`
	OutputLaTeX    string    `json:"output_latex"`
	CreatedAt      time.Time `json:"created_at"`
}

// PaperQuestion is one stored validated question of a paper.
type PaperQuestion struct {
	ID              string   `json:"id"`
	PaperID         string   `json:"paper_id"`
	QuestionNum     int      `json:"question_num"`
	Question        string   `json:"question"`
	QuestionLaTeX   string   `json:"question_latex"`
	Options         string   `json:"options"` // JSON array of strings
	OptionsLaTeX    string   `json:"options_latex"`
	CorrectAnswer   string   `json:"correct_answer"`
	ValidationScore *float64 `json:"validation_score"`
	Feedback        string   `json:"feedback"`
}

// OpenDB opens a new database connection
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			class TEXT NOT NULL,
			subject TEXT NOT NULL,
			chapter TEXT NOT NULL,
			topic TEXT NOT NULL,
			num_questions INTEGER NOT NULL,
			difficulty INTEGER NOT NULL,
			question_type TEXT NOT NULL,
			choice_type TEXT,
			raw_count INTEGER NOT NULL,
			validated_count INTEGER NOT NULL,
			retry_count INTEGER NOT NULL,
			output TEXT NOT NULL,
			output_latex TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS paper_questions (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL,
			question_num INTEGER NOT NULL,
			question TEXT NOT NULL,
			question_latex TEXT NOT NULL,
			options TEXT,
			options_latex TEXT,
			correct_answer TEXT,
			validation_score REAL,
			feedback TEXT,
			FOREIGN KEY (paper_id) REFERENCES papers(id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// SavePaper stores a completed run and its validated questions.
func (db *DB) SavePaper(state *WorkflowState) error {
	inputs := state.UserInputs

	_, err := db.db.Exec(
		`INSERT INTO papers (id, class, subject, chapter, topic, num_questions, difficulty,
			question_type, choice_type, raw_count, validated_count, retry_count,
			output, output_latex, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.RunID, inputs.Class, inputs.Subject, inputs.Chapter, inputs.Topic,
		inputs.NumQuestions, inputs.Difficulty, string(inputs.QuestionType), string(inputs.ChoiceType),
		len(state.RawGeneratedQuestions), len(state.ValidatedQuestions), state.RetryCount,
		state.Output, state.OutputLaTeX, state.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save paper: %w", err)
	}

	for i, q := range state.ValidatedQuestions {
		optionsJSON, err := optionsToJSON(q.Options)
		if err != nil {
			return err
		}
		optionsLaTeXJSON, err := optionsToJSON(q.OptionsLaTeX)
		if err != nil {
			return err
		}

		_, err = db.db.Exec(
			`INSERT INTO paper_questions (id, paper_id, question_num, question, question_latex,
				options, options_latex, correct_answer, validation_score, feedback)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("%s-%d", state.RunID, i+1), state.RunID, i+1,
			q.Question, q.QuestionLaTeX, optionsJSON, optionsLaTeXJSON,
			q.CorrectAnswer, q.ValidationScore, q.Feedback,
		)
		if err != nil {
			return fmt.Errorf("failed to save question %d: %w", i+1, err)
		}
	}
	return nil
}

// GetPaper retrieves a paper by ID
func (db *DB) GetPaper(id string) (*PaperRecord, error) {
	var p PaperRecord
	err := db.db.QueryRow(
		`SELECT id, class, subject, chapter, topic, num_questions, difficulty, question_type,
			choice_type, raw_count, validated_count, retry_count, output, output_latex, created_at
		 FROM papers WHERE id = ?`, id,
	).Scan(&p.ID, &p.Class, &p.Subject, &p.Chapter, &p.Topic, &p.NumQuestions, &p.Difficulty,
		&p.QuestionType, &p.ChoiceType, &p.RawCount, &p.ValidatedCount, &p.RetryCount,
		&p.Output, &p.OutputLaTeX, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("paper not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}
	return &p, nil
}

// ListPapers retrieves stored papers newest first, optionally limited.
func (db *DB) ListPapers(limit int) ([]PaperRecord, error) {
	query := `SELECT id, class, subject, chapter, topic, num_questions, difficulty, question_type,
			choice_type, raw_count, validated_count, retry_count, output, output_latex, created_at
		 FROM papers ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var papers []PaperRecord
	for rows.Next() {
		var p PaperRecord
		err := rows.Scan(&p.ID, &p.Class, &p.Subject, &p.Chapter, &p.Topic, &p.NumQuestions,
			&p.Difficulty, &p.QuestionType, &p.ChoiceType, &p.RawCount, &p.ValidatedCount,
			&p.RetryCount, &p.Output, &p.OutputLaTeX, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, nil
}

// GetPaperQuestions retrieves the stored questions for a paper in order.
func (db *DB) GetPaperQuestions(paperID string) ([]PaperQuestion, error) {
	rows, err := db.db.Query(
		`SELECT id, paper_id, question_num, question, question_latex, options, options_latex,
			correct_answer, validation_score, feedback
		 FROM paper_questions WHERE paper_id = ? ORDER BY question_num`, paperID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []PaperQuestion
	for rows.Next() {
		var q PaperQuestion
		err := rows.Scan(&q.ID, &q.PaperID, &q.QuestionNum, &q.Question, &q.QuestionLaTeX,
			&q.Options, &q.OptionsLaTeX, &q.CorrectAnswer, &q.ValidationScore, &q.Feedback)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}

	return questions, nil
}

func optionsToJSON(options []string) (string, error) {
	if len(options) == 0 {
		return "", nil
	}
	data, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to marshal options: %w", err)
	}
	return string(data), nil
}

// JSONToOptions converts a stored options column back to a slice.
func JSONToOptions(optionsJSON string) ([]string, error) {
	if optionsJSON == "" {
		return nil, nil
	}
	var options []string
	if err := json.Unmarshal([]byte(optionsJSON), &options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return options, nil
}
