// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore, ledger.CatalogWriter and ledger.Resetter.
// WithTx holds the write lock for the whole unit, so units serialize.
type Memory struct {
	mu sync.RWMutex
	st *state
}

var (
	_ ledger.TxStore       = (*Memory)(nil)
	_ ledger.CatalogWriter = (*Memory)(nil)
	_ ledger.Resetter      = (*Memory)(nil)
)

type pairKey struct {
	UserID   ledger.UserID
	CourseID ledger.CourseID
}

type progressKey struct {
	EnrollmentID ledger.EnrollmentID
	LessonID     ledger.LessonID
}

type state struct {
	nextUser   int64
	nextCourse int64
	nextLesson int64

	users        map[ledger.UserID]ledger.User
	emails       map[string]ledger.UserID
	courses      map[ledger.CourseID]ledger.Course
	lessons      map[ledger.LessonID]ledger.Lesson
	transactions []ledger.PointTransaction
	enrollments  map[ledger.EnrollmentID]ledger.Enrollment
	enrollOrder  []ledger.EnrollmentID
	pairs        map[pairKey]ledger.EnrollmentID
	progress     map[progressKey]ledger.LessonProgress
}

func newState() *state {
	return &state{
		users:       make(map[ledger.UserID]ledger.User),
		emails:      make(map[string]ledger.UserID),
		courses:     make(map[ledger.CourseID]ledger.Course),
		lessons:     make(map[ledger.LessonID]ledger.Lesson),
		enrollments: make(map[ledger.EnrollmentID]ledger.Enrollment),
		pairs:       make(map[pairKey]ledger.EnrollmentID),
		progress:    make(map[progressKey]ledger.LessonProgress),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{state: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txView exposes the live state to a unit of work. The parent lock is held.
type txView struct {
	*state
}

func (s *state) clone() *state {
	return &state{
		nextUser:     s.nextUser,
		nextCourse:   s.nextCourse,
		nextLesson:   s.nextLesson,
		users:        maps.Clone(s.users),
		emails:       maps.Clone(s.emails),
		courses:      maps.Clone(s.courses),
		lessons:      maps.Clone(s.lessons),
		transactions: slices.Clone(s.transactions),
		enrollments:  maps.Clone(s.enrollments),
		enrollOrder:  slices.Clone(s.enrollOrder),
		pairs:        maps.Clone(s.pairs),
		progress:     maps.Clone(s.progress),
	}
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) GetCourse(ctx context.Context, id ledger.CourseID) (*ledger.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetCourse(ctx, id)
}

func (m *Memory) LessonsForCourse(ctx context.Context, id ledger.CourseID) ([]ledger.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LessonsForCourse(ctx, id)
}

func (m *Memory) Balance(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.Balance(ctx, userID)
}

func (m *Memory) Debit(ctx context.Context, userID ledger.UserID, amount ledger.Points) (ledger.Points, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Debit(ctx, userID, amount)
}

func (m *Memory) Credit(ctx context.Context, userID ledger.UserID, amount ledger.Points) (ledger.Points, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Credit(ctx, userID, amount)
}

func (m *Memory) AppendTransaction(ctx context.Context, tx ledger.PointTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendTransaction(ctx, tx)
}

func (m *Memory) Transactions(ctx context.Context, userID ledger.UserID, limit, offset int) ([]ledger.PointTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.Transactions(ctx, userID, limit, offset)
}

func (m *Memory) CountTransactions(ctx context.Context, userID ledger.UserID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.CountTransactions(ctx, userID)
}

func (m *Memory) FindEnrollment(ctx context.Context, userID ledger.UserID, courseID ledger.CourseID) (*ledger.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.FindEnrollment(ctx, userID, courseID)
}

func (m *Memory) GetEnrollment(ctx context.Context, id ledger.EnrollmentID) (*ledger.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetEnrollment(ctx, id)
}

func (m *Memory) LockEnrollment(ctx context.Context, id ledger.EnrollmentID) (*ledger.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LockEnrollment(ctx, id)
}

func (m *Memory) ListEnrollments(ctx context.Context) ([]ledger.EnrollmentID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListEnrollments(ctx)
}

func (m *Memory) CreateEnrollment(ctx context.Context, e ledger.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateEnrollment(ctx, e)
}

func (m *Memory) ResolveLessonEnrollment(ctx context.Context, userID ledger.UserID, lessonID ledger.LessonID) (*ledger.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ResolveLessonEnrollment(ctx, userID, lessonID)
}

func (m *Memory) SeedProgress(ctx context.Context, rows []ledger.LessonProgress) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SeedProgress(ctx, rows)
}

func (m *Memory) ProgressLessonIDs(ctx context.Context, id ledger.EnrollmentID) ([]ledger.LessonID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ProgressLessonIDs(ctx, id)
}

func (m *Memory) CompleteLesson(ctx context.Context, id ledger.EnrollmentID, lessonID ledger.LessonID, minutes int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CompleteLesson(ctx, id, lessonID, minutes, at)
}

func (m *Memory) AddLessonTime(ctx context.Context, id ledger.EnrollmentID, lessonID ledger.LessonID, minutes int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AddLessonTime(ctx, id, lessonID, minutes, at)
}

func (m *Memory) CountProgress(ctx context.Context, id ledger.EnrollmentID) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.CountProgress(ctx, id)
}

func (m *Memory) SetProgressPercentage(ctx context.Context, id ledger.EnrollmentID, percentage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetProgressPercentage(ctx, id, percentage)
}

func (m *Memory) MarkEnrollmentCompleted(ctx context.Context, id ledger.EnrollmentID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkEnrollmentCompleted(ctx, id, at)
}

func (m *Memory) LessonProgress(ctx context.Context, id ledger.EnrollmentID) ([]ledger.LessonProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LessonProgress(ctx, id)
}

func (m *Memory) EnrolledCourses(ctx context.Context, userID ledger.UserID) ([]ledger.EnrolledCourse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.EnrolledCourses(ctx, userID)
}

func (m *Memory) CreateUser(ctx context.Context, u *ledger.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateUser(ctx, u)
}

func (m *Memory) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetUser(ctx, id)
}

func (m *Memory) CreateCourse(ctx context.Context, c *ledger.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateCourse(ctx, c)
}

func (m *Memory) SetCoursePublished(ctx context.Context, id ledger.CourseID, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetCoursePublished(ctx, id, published)
}

func (m *Memory) CreateLesson(ctx context.Context, l *ledger.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateLesson(ctx, l)
}

// =============================================================================
// STATE - Unlocked implementation shared by Memory and txView
// =============================================================================

func (s *state) GetCourse(_ context.Context, id ledger.CourseID) (*ledger.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, ledger.ErrCourseNotFound
	}
	return &c, nil
}

func (s *state) LessonsForCourse(_ context.Context, id ledger.CourseID) ([]ledger.Lesson, error) {
	var lessons []ledger.Lesson
	for _, l := range s.lessons {
		if l.CourseID == id {
			lessons = append(lessons, l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].Order != lessons[j].Order {
			return lessons[i].Order < lessons[j].Order
		}
		return lessons[i].ID < lessons[j].ID
	})
	return lessons, nil
}

func (s *state) Balance(_ context.Context, userID ledger.UserID) (ledger.Points, error) {
	u, ok := s.users[userID]
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	return u.Points, nil
}

func (s *state) Debit(_ context.Context, userID ledger.UserID, amount ledger.Points) (ledger.Points, error) {
	u, ok := s.users[userID]
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	if u.Points < amount {
		return u.Points, ledger.ErrInsufficientFunds
	}
	u.Points -= amount
	s.users[userID] = u
	return u.Points, nil
}

func (s *state) Credit(_ context.Context, userID ledger.UserID, amount ledger.Points) (ledger.Points, error) {
	u, ok := s.users[userID]
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	u.Points += amount
	s.users[userID] = u
	return u.Points, nil
}

func (s *state) AppendTransaction(_ context.Context, tx ledger.PointTransaction) error {
	if _, ok := s.users[tx.UserID]; !ok {
		return ledger.ErrUserNotFound
	}
	s.transactions = append(s.transactions, tx)
	return nil
}

func (s *state) Transactions(_ context.Context, userID ledger.UserID, limit, offset int) ([]ledger.PointTransaction, error) {
	var mine []ledger.PointTransaction
	// Newest first; for equal timestamps the later append wins.
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			mine = append(mine, s.transactions[i])
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})
	offset = max(offset, 0)
	if offset >= len(mine) || limit <= 0 {
		return nil, nil
	}
	end := offset + min(limit, len(mine)-offset)
	return mine[offset:end], nil
}

func (s *state) CountTransactions(_ context.Context, userID ledger.UserID) (int, error) {
	n := 0
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *state) FindEnrollment(_ context.Context, userID ledger.UserID, courseID ledger.CourseID) (*ledger.Enrollment, error) {
	id, ok := s.pairs[pairKey{UserID: userID, CourseID: courseID}]
	if !ok {
		return nil, nil
	}
	e := s.enrollments[id]
	return &e, nil
}

func (s *state) GetEnrollment(_ context.Context, id ledger.EnrollmentID) (*ledger.Enrollment, error) {
	e, ok := s.enrollments[id]
	if !ok {
		return nil, ledger.ErrEnrollmentNotFound
	}
	return &e, nil
}

// LockEnrollment needs no row lock: WithTx already holds the store mutex.
func (s *state) LockEnrollment(ctx context.Context, id ledger.EnrollmentID) (*ledger.Enrollment, error) {
	return s.GetEnrollment(ctx, id)
}

func (s *state) ListEnrollments(_ context.Context) ([]ledger.EnrollmentID, error) {
	return slices.Clone(s.enrollOrder), nil
}

func (s *state) CreateEnrollment(_ context.Context, e ledger.Enrollment) error {
	k := pairKey{UserID: e.UserID, CourseID: e.CourseID}
	if _, ok := s.pairs[k]; ok {
		return ledger.ErrAlreadyEnrolled
	}
	s.enrollments[e.ID] = e
	s.enrollOrder = append(s.enrollOrder, e.ID)
	s.pairs[k] = e.ID
	return nil
}

func (s *state) ResolveLessonEnrollment(_ context.Context, userID ledger.UserID, lessonID ledger.LessonID) (*ledger.Enrollment, error) {
	l, ok := s.lessons[lessonID]
	if !ok {
		return nil, nil
	}
	id, ok := s.pairs[pairKey{UserID: userID, CourseID: l.CourseID}]
	if !ok {
		return nil, nil
	}
	e := s.enrollments[id]
	return &e, nil
}

func (s *state) SeedProgress(_ context.Context, rows []ledger.LessonProgress) (int, error) {
	var n int
	for _, r := range rows {
		key := progressKey{r.EnrollmentID, r.LessonID}
		if _, ok := s.progress[key]; ok {
			continue
		}
		s.progress[key] = r
		n++
	}
	return n, nil
}

func (s *state) ProgressLessonIDs(_ context.Context, id ledger.EnrollmentID) ([]ledger.LessonID, error) {
	var ids []ledger.LessonID
	for k := range s.progress {
		if k.EnrollmentID == id {
			ids = append(ids, k.LessonID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *state) CompleteLesson(_ context.Context, id ledger.EnrollmentID, lessonID ledger.LessonID, minutes int, at time.Time) (bool, error) {
	k := progressKey{id, lessonID}
	p, ok := s.progress[k]
	if !ok {
		return false, nil
	}
	p.IsCompleted = true
	p.CompletedAt = &at
	p.TimeSpentMinutes += minutes
	p.LastAccessedAt = &at
	s.progress[k] = p
	return true, nil
}

func (s *state) AddLessonTime(_ context.Context, id ledger.EnrollmentID, lessonID ledger.LessonID, minutes int, at time.Time) (bool, error) {
	k := progressKey{id, lessonID}
	p, ok := s.progress[k]
	if !ok {
		return false, nil
	}
	p.TimeSpentMinutes += minutes
	p.LastAccessedAt = &at
	s.progress[k] = p
	return true, nil
}

func (s *state) CountProgress(_ context.Context, id ledger.EnrollmentID) (int, int, error) {
	total, completed := 0, 0
	for k, p := range s.progress {
		if k.EnrollmentID != id {
			continue
		}
		total++
		if p.IsCompleted {
			completed++
		}
	}
	return total, completed, nil
}

func (s *state) SetProgressPercentage(_ context.Context, id ledger.EnrollmentID, percentage int) error {
	e, ok := s.enrollments[id]
	if !ok {
		return ledger.ErrEnrollmentNotFound
	}
	e.ProgressPercentage = percentage
	s.enrollments[id] = e
	return nil
}

func (s *state) MarkEnrollmentCompleted(_ context.Context, id ledger.EnrollmentID, at time.Time) (bool, error) {
	e, ok := s.enrollments[id]
	if !ok {
		return false, ledger.ErrEnrollmentNotFound
	}
	if e.CompletedAt != nil {
		return false, nil
	}
	e.CompletedAt = &at
	s.enrollments[id] = e
	return true, nil
}

func (s *state) LessonProgress(_ context.Context, id ledger.EnrollmentID) ([]ledger.LessonProgress, error) {
	var rows []ledger.LessonProgress
	for k, p := range s.progress {
		if k.EnrollmentID != id {
			continue
		}
		l := s.lessons[k.LessonID]
		p.LessonTitle = l.Title
		p.LessonOrder = l.Order
		p.DurationMinutes = l.DurationMinutes
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LessonOrder != rows[j].LessonOrder {
			return rows[i].LessonOrder < rows[j].LessonOrder
		}
		return rows[i].LessonID < rows[j].LessonID
	})
	return rows, nil
}

func (s *state) EnrolledCourses(ctx context.Context, userID ledger.UserID) ([]ledger.EnrolledCourse, error) {
	var result []ledger.EnrolledCourse
	for _, e := range s.enrollments {
		if e.UserID != userID {
			continue
		}
		c := s.courses[e.CourseID]
		lessons, _ := s.LessonsForCourse(ctx, e.CourseID)
		_, completed, _ := s.CountProgress(ctx, e.ID)
		result = append(result, ledger.EnrolledCourse{
			Enrollment:       e,
			Title:            c.Title,
			Description:      c.Description,
			Thumbnail:        c.Thumbnail,
			DifficultyLevel:  c.DifficultyLevel,
			PointsCost:       c.PointsCost,
			PointsReward:     c.PointsReward,
			TotalLessons:     len(lessons),
			CompletedLessons: completed,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EnrolledAt.After(result[j].EnrolledAt)
	})
	return result, nil
}

func (s *state) CreateUser(_ context.Context, u *ledger.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := s.emails[u.Email]; ok {
		return ledger.ErrDuplicateEmail
	}
	if u.Role == "" {
		u.Role = ledger.RoleLearner
	}
	s.nextUser++
	u.ID = ledger.UserID(s.nextUser)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = *u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *state) GetUser(_ context.Context, id ledger.UserID) (*ledger.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return &u, nil
}

func (s *state) CreateCourse(_ context.Context, c *ledger.Course) error {
	s.nextCourse++
	c.ID = ledger.CourseID(s.nextCourse)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.courses[c.ID] = *c
	return nil
}

func (s *state) SetCoursePublished(_ context.Context, id ledger.CourseID, published bool) error {
	c, ok := s.courses[id]
	if !ok {
		return ledger.ErrCourseNotFound
	}
	c.IsPublished = published
	s.courses[id] = c
	return nil
}

func (s *state) CreateLesson(_ context.Context, l *ledger.Lesson) error {
	if _, ok := s.courses[l.CourseID]; !ok {
		return ledger.ErrCourseNotFound
	}
	s.nextLesson++
	l.ID = ledger.LessonID(s.nextLesson)
	s.lessons[l.ID] = *l
	return nil
}
