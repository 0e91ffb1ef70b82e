// Package repository persists pending answers, exam completions and the
// reference data the scoring stages read.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"speech-scoring-service/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS org_groups (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS users (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS exams (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS questions (
	id            TEXT PRIMARY KEY,
	exam_id       TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL DEFAULT 'PHRASES',
	words         TEXT NOT NULL DEFAULT '[]',
	phrase_set_id TEXT NOT NULL DEFAULT '',
	language      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_questions_exam ON questions(exam_id);

CREATE TABLE IF NOT EXISTS pending_answers (
	id              TEXT PRIMARY KEY,
	exam_id         TEXT NOT NULL,
	question_id     TEXT NOT NULL,
	group_id        TEXT NOT NULL DEFAULT '',
	organization_id TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL,
	audio_url       TEXT NOT NULL DEFAULT '',
	result          TEXT NOT NULL DEFAULT '[]',
	right_count     INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'NOT_STARTED',
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL,
	UNIQUE(user_id, exam_id, question_id)
);

CREATE TABLE IF NOT EXISTS exam_completions (
	exam_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (exam_id, user_id)
);
`

// SQLite is the repository backed by a SQLite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by readiness.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) stamp() int64 {
	return s.now().UnixMilli()
}

// UpsertOrganization stores an organization (a school).
func (s *SQLite) UpsertOrganization(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name)
	if err != nil {
		return fmt.Errorf("upsert organization: %w", err)
	}
	return nil
}

// UpsertGroup stores a group (a class).
func (s *SQLite) UpsertGroup(ctx context.Context, id, organizationID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_groups (id, organization_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET organization_id = excluded.organization_id, name = excluded.name
	`, id, organizationID, name)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	return nil
}

// UpsertUser stores a user (a student).
func (s *SQLite) UpsertUser(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpsertExam stores an exam.
func (s *SQLite) UpsertExam(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exams (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name)
	if err != nil {
		return fmt.Errorf("upsert exam: %w", err)
	}
	return nil
}

// UpsertQuestion stores a question and its expected words.
func (s *SQLite) UpsertQuestion(ctx context.Context, q models.Question) error {
	words, err := json.Marshal(nonNil(q.Words))
	if err != nil {
		return fmt.Errorf("encode words: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questions (id, exam_id, title, type, words, phrase_set_id, language)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			exam_id = excluded.exam_id,
			title = excluded.title,
			type = excluded.type,
			words = excluded.words,
			phrase_set_id = excluded.phrase_set_id,
			language = excluded.language
	`, q.ID, q.ExamID, q.Title, q.Type.String(), string(words), q.PhraseSetID, q.Language)
	if err != nil {
		return fmt.Errorf("upsert question: %w", err)
	}
	return nil
}

// GetQuestion returns a question by id.
func (s *SQLite) GetQuestion(ctx context.Context, id string) (models.Question, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, title, type, words, phrase_set_id, language
		FROM questions WHERE id = ?
	`, id)

	var q models.Question
	var qtype, words string
	if err := row.Scan(&q.ID, &q.ExamID, &q.Title, &qtype, &words, &q.PhraseSetID, &q.Language); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Question{}, fmt.Errorf("question %s: %w", id, ErrNotFound)
		}
		return models.Question{}, fmt.Errorf("scan question: %w", err)
	}
	q.Type = models.ParseQuestionType(qtype)
	if err := json.Unmarshal([]byte(words), &q.Words); err != nil {
		return models.Question{}, fmt.Errorf("decode words of question %s: %w", id, err)
	}
	return q, nil
}

// SetPhraseSet records the recognizer phrase set biasing a question.
func (s *SQLite) SetPhraseSet(ctx context.Context, questionID, phraseSetID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET phrase_set_id = ? WHERE id = ?`, phraseSetID, questionID)
	if err != nil {
		return fmt.Errorf("set phrase set: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}
	return nil
}

// CreatePendingAnswer inserts a NOT_STARTED answer. At most one answer exists
// per (user, exam, question); when one already exists its id is returned and
// created is false.
func (s *SQLite) CreatePendingAnswer(ctx context.Context, a models.PendingAnswer) (id string, created bool, err error) {
	now := s.stamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_answers
			(id, exam_id, question_id, group_id, organization_id, user_id, audio_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, exam_id, question_id) DO NOTHING
	`, a.ID, a.ExamID, a.QuestionID, a.GroupID, a.OrganizationID, a.UserID, a.AudioURL,
		models.StatusNotStarted.String(), now, now)
	if err != nil {
		return "", false, fmt.Errorf("insert pending answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return a.ID, true, nil
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM pending_answers WHERE user_id = ? AND exam_id = ? AND question_id = ?
	`, a.UserID, a.ExamID, a.QuestionID).Scan(&id)
	if err != nil {
		return "", false, fmt.Errorf("lookup existing answer: %w", err)
	}
	return id, false, nil
}

// GetAnswer returns a pending answer by id.
func (s *SQLite) GetAnswer(ctx context.Context, id string) (models.PendingAnswer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, question_id, group_id, organization_id, user_id,
			audio_url, result, right_count, status, created_at, updated_at
		FROM pending_answers WHERE id = ?
	`, id)

	var a models.PendingAnswer
	var result, status string
	var createdAt, updatedAt int64
	if err := row.Scan(&a.ID, &a.ExamID, &a.QuestionID, &a.GroupID, &a.OrganizationID, &a.UserID,
		&a.AudioURL, &result, &a.RightCount, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PendingAnswer{}, fmt.Errorf("answer %s: %w", id, ErrNotFound)
		}
		return models.PendingAnswer{}, fmt.Errorf("scan answer: %w", err)
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return models.PendingAnswer{}, fmt.Errorf("answer %s: %w", id, err)
	}
	a.Status = st
	if err := json.Unmarshal([]byte(result), &a.Result); err != nil {
		return models.PendingAnswer{}, fmt.Errorf("decode result of answer %s: %w", id, err)
	}
	a.CreatedAt = time.UnixMilli(createdAt)
	a.UpdatedAt = time.UnixMilli(updatedAt)
	return a, nil
}

// MarkInProgress moves a NOT_STARTED answer to IN_PROGRESS. It reports
// whether a row changed.
func (s *SQLite) MarkInProgress(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_answers SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.StatusInProgress.String(), s.stamp(), id, models.StatusNotStarted.String())
	if err != nil {
		return false, fmt.Errorf("mark in progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishAnswer writes the score and moves the answer to FINISHED. The update
// only applies to an answer that is not already FINISHED, so it reports false
// when the answer is missing or was scored by another delivery.
func (s *SQLite) FinishAnswer(ctx context.Context, id string, result models.MatchResult, audioURL string) (bool, error) {
	words, err := json.Marshal(nonNil(result.Transcript))
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_answers
		SET result = ?, right_count = ?, audio_url = ?, status = ?, updated_at = ?
		WHERE id = ? AND status != ?
	`, string(words), result.RightCount, audioURL, models.StatusFinished.String(), s.stamp(),
		id, models.StatusFinished.String())
	if err != nil {
		return false, fmt.Errorf("finish answer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteExamIfDone recomputes the exam completion of a user. When every
// question of the exam has a FINISHED answer the aggregate moves to FINISHED
// and finished is true, but only for the call that made the transition.
// Otherwise the aggregate is raised to IN_PROGRESS.
func (s *SQLite) CompleteExamIfDone(ctx context.Context, examID, userID string) (finished bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var remaining int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM questions q
		WHERE q.exam_id = ?
		AND NOT EXISTS (
			SELECT 1 FROM pending_answers a
			WHERE a.question_id = q.id AND a.exam_id = q.exam_id
			AND a.user_id = ? AND a.status = ?
		)
	`, examID, userID, models.StatusFinished.String()).Scan(&remaining)
	if err != nil {
		return false, fmt.Errorf("count unfinished questions: %w", err)
	}

	now := s.stamp()
	if remaining == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO exam_completions (exam_id, user_id, status, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(exam_id, user_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
			WHERE exam_completions.status != excluded.status
		`, examID, userID, models.StatusFinished.String(), now)
		if err != nil {
			return false, fmt.Errorf("finish exam completion: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		finished = n == 1
	} else {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO exam_completions (exam_id, user_id, status, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(exam_id, user_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
			WHERE exam_completions.status = ?
		`, examID, userID, models.StatusInProgress.String(), now, models.StatusNotStarted.String())
		if err != nil {
			return false, fmt.Errorf("raise exam completion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return finished, nil
}

// GetExamCompletion returns the aggregate of an exam and user. A pair with no
// row yet is NOT_STARTED.
func (s *SQLite) GetExamCompletion(ctx context.Context, examID, userID string) (models.ExamCompletion, error) {
	c := models.ExamCompletion{ExamID: examID, UserID: userID, Status: models.StatusNotStarted}
	var status string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT status, updated_at FROM exam_completions WHERE exam_id = ? AND user_id = ?
	`, examID, userID).Scan(&status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("scan exam completion: %w", err)
	}
	if c.Status, err = models.ParseStatus(status); err != nil {
		return c, err
	}
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return c, nil
}

// AnalyticContext returns an analytic record with the identifiers and display
// names surrounding an answer filled in. Names of missing reference rows are
// left empty.
func (s *SQLite) AnalyticContext(ctx context.Context, answerID string) (models.AnalyticRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.organization_id, COALESCE(o.name, ''), a.group_id, COALESCE(g.name, ''),
			a.exam_id, COALESCE(e.name, ''), a.question_id, COALESCE(q.title, ''),
			a.user_id, COALESCE(u.name, '')
		FROM pending_answers a
		LEFT JOIN organizations o ON o.id = a.organization_id
		LEFT JOIN org_groups g ON g.id = a.group_id
		LEFT JOIN exams e ON e.id = a.exam_id
		LEFT JOIN questions q ON q.id = a.question_id
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.id = ?
	`, answerID)

	var r models.AnalyticRecord
	if err := row.Scan(&r.ResultID, &r.SchoolID, &r.SchoolName, &r.ClassID, &r.ClassName,
		&r.ExamID, &r.ExamName, &r.QuestionID, &r.QuestionTitle, &r.StudentID, &r.StudentName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AnalyticRecord{}, fmt.Errorf("answer %s: %w", answerID, ErrNotFound)
		}
		return models.AnalyticRecord{}, fmt.Errorf("scan analytic context: %w", err)
	}
	return r, nil
}

func nonNil(words []string) []string {
	if words == nil {
		return []string{}
	}
	return words
}
