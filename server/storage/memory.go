package storage

import (
	"sort"
	"sync"

	"github.com/san-kum/examguard/server/models"
)

// MemoryStore is an in-memory stand-in for Store, used in tests and when
// no database path is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	tests       map[string]models.Test
	sessions    map[string]models.TestSession
	alerts      map[string][]models.AlertEvent
	submissions map[string]models.Submission
	recordings  map[string]recordingEntry
}

type recordingEntry struct {
	data []byte
	meta models.RecordingMeta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tests:       make(map[string]models.Test),
		sessions:    make(map[string]models.TestSession),
		alerts:      make(map[string][]models.AlertEvent),
		submissions: make(map[string]models.Submission),
		recordings:  make(map[string]recordingEntry),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) SaveTest(test *models.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[test.Code] = *test
	return nil
}

func (s *MemoryStore) GetTestByCode(code string) (*models.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	test, ok := s.tests[code]
	if !ok {
		return nil, ErrNotFound
	}
	out := test
	return &out, nil
}

func (s *MemoryStore) UpsertSession(session *models.TestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[SessionKey(session.TestCode, session.StudentName)] = *session
	return nil
}

func (s *MemoryStore) GetSession(testCode, studentName string) (*models.TestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[SessionKey(testCode, studentName)]
	if !ok {
		return nil, ErrNotFound
	}
	out := session
	return &out, nil
}

func (s *MemoryStore) AppendAlert(alert *models.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SessionKey(alert.TestCode, alert.StudentName)
	for _, existing := range s.alerts[key] {
		if existing.ID == alert.ID {
			return nil
		}
	}
	s.alerts[key] = append(s.alerts[key], *alert)
	return nil
}

func (s *MemoryStore) AlertsForSession(testCode, studentName string) ([]models.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.alerts[SessionKey(testCode, studentName)]
	out := make([]models.AlertEvent, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) SaveSubmission(submission *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[SessionKey(submission.TestCode, submission.StudentName)] = *submission
	return nil
}

func (s *MemoryStore) GetSubmission(testCode, studentName string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	submission, ok := s.submissions[SessionKey(testCode, studentName)]
	if !ok {
		return nil, ErrNotFound
	}
	out := submission
	return &out, nil
}

func (s *MemoryStore) SaveRecording(key string, data []byte, meta models.RecordingMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta.Key = key
	meta.Size = int64(len(data))
	s.recordings[key] = recordingEntry{data: data, meta: meta}
	return nil
}

func (s *MemoryStore) GetRecording(key string) ([]byte, *models.RecordingMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.recordings[key]
	if !ok {
		return nil, nil, ErrNotFound
	}
	meta := entry.meta
	return entry.data, &meta, nil
}

func (s *MemoryStore) FindRecording(testCode, studentName string) (*models.RecordingMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *models.RecordingMeta
	for _, entry := range s.recordings {
		if entry.meta.TestCode != testCode || entry.meta.StudentName != studentName {
			continue
		}
		meta := entry.meta
		if newest == nil || meta.CreatedAt.After(newest.CreatedAt) {
			newest = &meta
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return newest, nil
}

func (s *MemoryStore) ListUnlinkedRecordings() ([]models.RecordingMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var metas []models.RecordingMeta
	for _, entry := range s.recordings {
		if entry.meta.TestCode == "" && entry.meta.StudentName == "" {
			metas = append(metas, entry.meta)
		}
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

func (s *MemoryStore) UpdateRecordingMetadata(key, testCode, studentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.recordings[key]
	if !ok {
		return ErrNotFound
	}
	entry.meta.TestCode = testCode
	entry.meta.StudentName = studentName
	s.recordings[key] = entry
	return nil
}
