package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/san-kum/examguard/server/models"
)

// SaveRecording stores recording data with its metadata. The test code
// and student name may be empty when the upload lands before the session
// links it.
func (s *Store) SaveRecording(key string, data []byte, meta models.RecordingMeta) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO recordings (key, data, test_code, student_name, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key, data, meta.TestCode, meta.StudentName,
		int64(len(data)), meta.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	return nil
}

func (s *Store) GetRecording(key string) ([]byte, *models.RecordingMeta, error) {
	var data []byte
	meta := models.RecordingMeta{Key: key}
	var createdAt string

	err := s.db.QueryRow(
		`SELECT data, test_code, student_name, size, created_at FROM recordings WHERE key = ?`,
		key).Scan(&data, &meta.TestCode, &meta.StudentName, &meta.Size, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to query recording: %w", err)
	}

	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		meta.CreatedAt = ts
	}
	return data, &meta, nil
}

// FindRecording returns the metadata of a recording already linked to the
// session, or ErrNotFound.
func (s *Store) FindRecording(testCode, studentName string) (*models.RecordingMeta, error) {
	meta := models.RecordingMeta{TestCode: testCode, StudentName: studentName}
	var createdAt string

	err := s.db.QueryRow(
		`SELECT key, size, created_at FROM recordings
		 WHERE test_code = ? AND student_name = ?
		 ORDER BY created_at DESC LIMIT 1`,
		testCode, studentName).Scan(&meta.Key, &meta.Size, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find recording: %w", err)
	}

	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		meta.CreatedAt = ts
	}
	return &meta, nil
}

// ListUnlinkedRecordings returns recordings whose upload finished before
// any session claimed them, newest first.
func (s *Store) ListUnlinkedRecordings() ([]models.RecordingMeta, error) {
	rows, err := s.db.Query(
		`SELECT key, size, created_at FROM recordings
		 WHERE test_code = '' AND student_name = ''
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var metas []models.RecordingMeta
	for rows.Next() {
		var meta models.RecordingMeta
		var createdAt string
		if err := rows.Scan(&meta.Key, &meta.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			meta.CreatedAt = ts
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// UpdateRecordingMetadata links a recording to a session.
func (s *Store) UpdateRecordingMetadata(key, testCode, studentName string) error {
	result, err := s.db.Exec(
		`UPDATE recordings SET test_code = ?, student_name = ? WHERE key = ?`,
		testCode, studentName, key)
	if err != nil {
		return fmt.Errorf("failed to update recording metadata: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
