// Package storage persists session-scoped entities (goals, journal entries,
// skills) in SQLite. The default DSN is ":memory:", so nothing outlives the
// process unless a data directory is configured explicitly.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okulov/selftrack/internal/goals"
	"github.com/okulov/selftrack/internal/journal"
	"github.com/okulov/selftrack/internal/skills"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database with methods for sessions, goals, journal
// entries, and skills.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database, the
// default for ephemeral sessions and tests.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "selftrack.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Sessions ---

func (s *Store) CreateSession(id string, createdAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, created_at) VALUES (?, ?)`,
		id, createdAt.UTC().Format(time.RFC3339))
	return err
}

// DeleteSession removes the session and every entity it owns in one
// transaction.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM milestones WHERE goal_id IN (SELECT id FROM goals WHERE session_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM goals WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM journal_entries WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM skill_history WHERE skill_id IN (SELECT id FROM skills WHERE session_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM skills WHERE session_id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CountSessions() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// --- Goals ---

// SaveGoal inserts a goal and its milestones, keeping milestone order.
func (s *Store) SaveGoal(sessionID string, g goals.Goal, createdAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning goal transaction: %w", err)
	}
	defer tx.Rollback()

	targetDate := ""
	if !g.TargetDate.IsZero() {
		targetDate = g.TargetDate.UTC().Format(time.RFC3339)
	}
	if _, err := tx.Exec(`
		INSERT INTO goals (id, session_id, title, category, target_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, sessionID, g.Title, g.Category, targetDate, createdAt.UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}

	for i, m := range g.Milestones {
		if _, err := tx.Exec(`
			INSERT INTO milestones (id, goal_id, position, description, completed)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, g.ID, i, m.Description, m.Completed,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetGoal loads one goal with its milestones in recorded order.
func (s *Store) GetGoal(sessionID, goalID string) (goals.Goal, error) {
	var g goals.Goal
	var targetDate string
	err := s.db.QueryRow(`
		SELECT id, title, category, target_date FROM goals
		WHERE id = ? AND session_id = ?`, goalID, sessionID,
	).Scan(&g.ID, &g.Title, &g.Category, &targetDate)
	if err == sql.ErrNoRows {
		return goals.Goal{}, ErrNotFound
	}
	if err != nil {
		return goals.Goal{}, err
	}
	if targetDate != "" {
		t, err := time.Parse(time.RFC3339, targetDate)
		if err != nil {
			return goals.Goal{}, fmt.Errorf("parsing target_date: %w", err)
		}
		g.TargetDate = t
	}

	g.Milestones, err = s.goalMilestones(goalID)
	return g, err
}

func (s *Store) goalMilestones(goalID string) ([]goals.Milestone, error) {
	rows, err := s.db.Query(`
		SELECT id, description, completed FROM milestones
		WHERE goal_id = ? ORDER BY position ASC`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []goals.Milestone
	for rows.Next() {
		var m goals.Milestone
		if err := rows.Scan(&m.ID, &m.Description, &m.Completed); err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// Goals lists a session's goals with milestones, oldest first.
func (s *Store) Goals(sessionID string) ([]goals.Goal, error) {
	rows, err := s.db.Query(`
		SELECT id FROM goals WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]goals.Goal, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGoal(sessionID, id)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, nil
}

func (s *Store) DeleteGoal(sessionID, goalID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM goals WHERE id = ? AND session_id = ?`, goalID, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM milestones WHERE goal_id = ?`, goalID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetMilestoneCompleted flips one milestone's completed flag. The session
// and goal ids scope the update so a session can only touch its own data.
func (s *Store) SetMilestoneCompleted(sessionID, goalID, milestoneID string, completed bool) error {
	res, err := s.db.Exec(`
		UPDATE milestones SET completed = ?
		WHERE id = ? AND goal_id = (SELECT id FROM goals WHERE id = ? AND session_id = ?)`,
		completed, milestoneID, goalID, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Journal ---

func (s *Store) SaveJournalEntry(sessionID string, e journal.Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO journal_entries (id, session_id, created_at, body, growth_score, fixed_score, net_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, sessionID, e.CreatedAt.UTC().Format(time.RFC3339), e.Text,
		e.Score.Growth, e.Score.Fixed, e.Score.Net,
	)
	return err
}

// UpdateJournalEntry replaces an entry's text and score. The timestamp is
// the entry's creation time and does not move on edit.
func (s *Store) UpdateJournalEntry(sessionID, entryID, text string, score journal.Score) error {
	res, err := s.db.Exec(`
		UPDATE journal_entries SET body = ?, growth_score = ?, fixed_score = ?, net_score = ?
		WHERE id = ? AND session_id = ?`,
		text, score.Growth, score.Fixed, score.Net, entryID, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteJournalEntry(sessionID, entryID string) error {
	res, err := s.db.Exec(`DELETE FROM journal_entries WHERE id = ? AND session_id = ?`, entryID, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// JournalEntries lists a session's entries, oldest first.
func (s *Store) JournalEntries(sessionID string) ([]journal.Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, body, growth_score, fixed_score, net_score
		FROM journal_entries WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &createdAt, &e.Text, &e.Score.Growth, &e.Score.Fixed, &e.Score.Net); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Skills ---

// SaveSkill inserts a skill with its history, appended after the session's
// existing skills so radar order matches creation order.
func (s *Store) SaveSkill(sessionID string, sk *skills.Skill) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning skill transaction: %w", err)
	}
	defer tx.Rollback()

	var position int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position)+1, 0) FROM skills WHERE session_id = ?`, sessionID).Scan(&position); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO skills (id, session_id, position, name, category, current_level, target_level)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sk.ID, sessionID, position, sk.Name, sk.Category, sk.CurrentLevel, sk.TargetLevel,
	); err != nil {
		return err
	}

	for i, h := range sk.History {
		if _, err := tx.Exec(`
			INSERT INTO skill_history (skill_id, position, recorded_at, level)
			VALUES (?, ?, ?, ?)`,
			sk.ID, i, h.Timestamp.UTC().Format(time.RFC3339), h.Level,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecordSkillLevel appends a history point and updates the current level.
func (s *Store) RecordSkillLevel(sessionID, skillID string, point skills.HistoryPoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning record transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE skills SET current_level = ? WHERE id = ? AND session_id = ?`,
		point.Level, skillID, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	var position int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position)+1, 0) FROM skill_history WHERE skill_id = ?`, skillID).Scan(&position); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO skill_history (skill_id, position, recorded_at, level)
		VALUES (?, ?, ?, ?)`,
		skillID, position, point.Timestamp.UTC().Format(time.RFC3339), point.Level,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetSkill loads one skill with its full history in recorded order.
func (s *Store) GetSkill(sessionID, skillID string) (*skills.Skill, error) {
	var sk skills.Skill
	err := s.db.QueryRow(`
		SELECT id, name, category, current_level, target_level FROM skills
		WHERE id = ? AND session_id = ?`, skillID, sessionID,
	).Scan(&sk.ID, &sk.Name, &sk.Category, &sk.CurrentLevel, &sk.TargetLevel)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sk.History, err = s.skillHistory(skillID)
	if err != nil {
		return nil, err
	}
	return &sk, nil
}

func (s *Store) skillHistory(skillID string) ([]skills.HistoryPoint, error) {
	rows, err := s.db.Query(`
		SELECT recorded_at, level FROM skill_history
		WHERE skill_id = ? ORDER BY position ASC`, skillID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []skills.HistoryPoint
	for rows.Next() {
		var recordedAt string
		var h skills.HistoryPoint
		if err := rows.Scan(&recordedAt, &h.Level); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		h.Timestamp = t
		history = append(history, h)
	}
	return history, rows.Err()
}

// Skills lists a session's skills with histories, in creation order.
func (s *Store) Skills(sessionID string) ([]*skills.Skill, error) {
	rows, err := s.db.Query(`
		SELECT id FROM skills WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*skills.Skill, 0, len(ids))
	for _, id := range ids {
		sk, err := s.GetSkill(sessionID, id)
		if err != nil {
			return nil, err
		}
		result = append(result, sk)
	}
	return result, nil
}
