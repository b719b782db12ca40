package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/san-kum/examguard/server/models"
)

var ErrNotFound = sql.ErrNoRows

// SaveTest inserts or replaces a test definition, keyed by its join code.
func (s *Store) SaveTest(test *models.Test) error {
	payload, err := json.Marshal(test)
	if err != nil {
		return fmt.Errorf("failed to marshal test: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO tests (code, payload, created_at) VALUES (?, ?, ?)`,
		test.Code, string(payload), test.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save test: %w", err)
	}
	return nil
}

func (s *Store) GetTestByCode(code string) (*models.Test, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM tests WHERE code = ?`, code).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query test: %w", err)
	}

	var test models.Test
	if err := json.Unmarshal([]byte(payload), &test); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test: %w", err)
	}
	return &test, nil
}

// UpsertSession writes a session snapshot. A student rejoining the same
// test overwrites their earlier session rather than creating a second one.
func (s *Store) UpsertSession(session *models.TestSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (test_code, student_name, payload, updated_at)
		 VALUES (?, ?, ?, ?)`,
		session.TestCode, session.StudentName, string(payload),
		time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(testCode, studentName string) (*models.TestSession, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM sessions WHERE test_code = ? AND student_name = ?`,
		testCode, studentName).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	var session models.TestSession
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// AppendAlert stores one alert. Alerts are append-only; their IDs are
// unique so replays are harmless.
func (s *Store) AppendAlert(alert *models.AlertEvent) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO alerts (id, test_code, student_name, type, severity, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.TestCode, alert.StudentName,
		string(alert.Type), string(alert.Severity), alert.Message,
		alert.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

func (s *Store) AlertsForSession(testCode, studentName string) ([]models.AlertEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, type, severity, message, created_at FROM alerts
		 WHERE test_code = ? AND student_name = ? ORDER BY created_at`,
		testCode, studentName)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertEvent
	for rows.Next() {
		var alert models.AlertEvent
		var alertType, severity, createdAt string
		if err := rows.Scan(&alert.ID, &alertType, &severity, &alert.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alert.TestCode = testCode
		alert.StudentName = studentName
		alert.Type = models.AlertType(alertType)
		alert.Severity = models.Severity(severity)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			alert.Timestamp = ts
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// SaveSubmission upserts a graded submission for the session.
func (s *Store) SaveSubmission(submission *models.Submission) error {
	payload, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO submissions (test_code, student_name, payload, submitted_at)
		 VALUES (?, ?, ?, ?)`,
		submission.TestCode, submission.StudentName, string(payload),
		submission.SubmittedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	return nil
}

func (s *Store) GetSubmission(testCode, studentName string) (*models.Submission, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM submissions WHERE test_code = ? AND student_name = ?`,
		testCode, studentName).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}

	var submission models.Submission
	if err := json.Unmarshal([]byte(payload), &submission); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
	}
	return &submission, nil
}
