package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"familyportal-backend/shared/database/models/auth"
	"familyportal-backend/shared/utils/ratelimit"
)

var (
	ErrNoActiveQuestions = errors.New("no active security questions")
	ErrNoAnswers         = errors.New("at least one answer is required")
	ErrQuestionNotFound  = errors.New("security question not found")
	ErrInvalidQuestion   = errors.New("question and answer are required")
	ErrInvalidReorder    = errors.New("reorder requires a list of distinct question ids")
)

// GateSettings is the attempt budget for one gate action
type GateSettings struct {
	MaxAttempts  int
	BlockMinutes int
}

// AlertNotifier is told when a client gets locked out of the portal
type AlertNotifier interface {
	SecurityLockout(ip string, blockedUntil time.Time)
}

// QuestionPrompt is the public view of a question; the answer never leaves the server
type QuestionPrompt struct {
	ID       uuid.UUID `json:"id"`
	Question string    `json:"question"`
}

// VerifyResult is the outcome of one answer submission
type VerifyResult struct {
	Verified bool
	Status   ratelimit.Status
}

// QuestionInput carries admin edits; nil fields are left unchanged
type QuestionInput struct {
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	IsActive     *bool  `json:"is_active"`
	DisplayOrder *int   `json:"display_order"`
}

type PortalService struct {
	db      *gorm.DB
	limiter *ratelimit.Limiter
	gate    GateSettings
	alerts  AlertNotifier
	pick    func(n int) int
	log     *zap.Logger
}

func NewPortalService(db *gorm.DB, limiter *ratelimit.Limiter, gate GateSettings, alerts AlertNotifier, log *zap.Logger) *PortalService {
	return &PortalService{
		db:      db,
		limiter: limiter,
		gate:    gate,
		alerts:  alerts,
		pick:    rand.Intn,
		log:     log,
	}
}

// Status reports the caller's current security budget
func (s *PortalService) Status(ctx context.Context, ip string) (ratelimit.Status, error) {
	return s.limiter.Check(ctx, ip, ratelimit.ActionSecurity, s.gate.MaxAttempts)
}

// NextQuestion returns one active question picked uniformly at random. A
// blocked caller gets the block status and no question.
func (s *PortalService) NextQuestion(ctx context.Context, ip string) (ratelimit.Status, *QuestionPrompt, error) {
	status, err := s.Status(ctx, ip)
	if err != nil {
		return ratelimit.Status{}, nil, err
	}
	if status.Blocked() {
		return status, nil, nil
	}

	var questions []auth.SecurityQuestion
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("display_order ASC").
		Find(&questions).Error; err != nil {
		return ratelimit.Status{}, nil, fmt.Errorf("load security questions: %w", err)
	}
	if len(questions) == 0 {
		return status, nil, ErrNoActiveQuestions
	}

	q := questions[s.pick(len(questions))]
	return status, &QuestionPrompt{ID: q.ID, Question: q.Question}, nil
}

// Verify checks a full answer submission. Every submitted answer must match;
// a mismatch anywhere counts as exactly one failed attempt.
func (s *PortalService) Verify(ctx context.Context, ip string, answers map[string]string) (VerifyResult, error) {
	if len(answers) == 0 {
		return VerifyResult{}, ErrNoAnswers
	}

	status, err := s.Status(ctx, ip)
	if err != nil {
		return VerifyResult{}, err
	}
	if status.Blocked() {
		return VerifyResult{Status: status}, nil
	}

	ok, err := s.answersMatch(ctx, answers)
	if err != nil {
		return VerifyResult{}, err
	}

	if ok {
		if err := s.limiter.ResetAttempts(ctx, ip, ratelimit.ActionSecurity); err != nil {
			return VerifyResult{}, err
		}
		s.log.Info("portal verification succeeded", zap.String("ip", ip))
		return VerifyResult{
			Verified: true,
			Status:   ratelimit.Status{Allowed: true, AttemptsLeft: s.gate.MaxAttempts},
		}, nil
	}

	status, err = s.limiter.RecordFailedAttempt(ctx, ip, ratelimit.ActionSecurity, s.gate.MaxAttempts, s.gate.BlockMinutes)
	if err != nil {
		return VerifyResult{}, err
	}

	if status.Blocked() {
		s.log.Warn("portal locked after failed verification",
			zap.String("ip", ip), zap.Timep("blocked_until", status.BlockedUntil))
		if s.alerts != nil {
			s.alerts.SecurityLockout(ip, *status.BlockedUntil)
		}
	} else {
		s.log.Info("portal verification failed", zap.String("ip", ip), zap.Int("attempts_left", status.AttemptsLeft))
	}

	return VerifyResult{Status: status}, nil
}

func (s *PortalService) answersMatch(ctx context.Context, answers map[string]string) (bool, error) {
	submitted := make(map[uuid.UUID]string, len(answers))
	for rawID, answer := range answers {
		id, err := uuid.Parse(strings.TrimSpace(rawID))
		if err != nil {
			return false, nil
		}
		// Distinct spellings of one id must not shadow each other
		if _, dup := submitted[id]; dup {
			return false, nil
		}
		submitted[id] = answer
	}

	ids := make([]uuid.UUID, 0, len(submitted))
	for id := range submitted {
		ids = append(ids, id)
	}

	var questions []auth.SecurityQuestion
	if err := s.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&questions).Error; err != nil {
		return false, fmt.Errorf("load submitted questions: %w", err)
	}
	if len(questions) != len(submitted) {
		return false, nil
	}

	for i := range questions {
		if !questions[i].Matches(submitted[questions[i].ID]) {
			return false, nil
		}
	}
	return true, nil
}

// ListQuestions returns every question, active or not, in display order
func (s *PortalService) ListQuestions(ctx context.Context) ([]auth.SecurityQuestion, error) {
	var questions []auth.SecurityQuestion
	err := s.db.WithContext(ctx).Order("display_order ASC, created_at ASC").Find(&questions).Error
	return questions, err
}

func (s *PortalService) CreateQuestion(ctx context.Context, in QuestionInput) (*auth.SecurityQuestion, error) {
	if strings.TrimSpace(in.Question) == "" || strings.TrimSpace(in.Answer) == "" {
		return nil, ErrInvalidQuestion
	}

	q := auth.SecurityQuestion{
		Question: strings.TrimSpace(in.Question),
		Answer:   in.Answer,
		IsActive: true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.DisplayOrder != nil {
			q.DisplayOrder = *in.DisplayOrder
		} else {
			var maxOrder int
			if err := tx.Model(&auth.SecurityQuestion{}).Select("COALESCE(MAX(display_order), -1)").Scan(&maxOrder).Error; err != nil {
				return err
			}
			q.DisplayOrder = maxOrder + 1
		}

		if err := tx.Create(&q).Error; err != nil {
			return err
		}

		// is_active has a column default, so false must be written explicitly
		if in.IsActive != nil && !*in.IsActive {
			q.IsActive = false
			return tx.Model(&q).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create security question: %w", err)
	}

	return &q, nil
}

func (s *PortalService) UpdateQuestion(ctx context.Context, id uuid.UUID, in QuestionInput) (*auth.SecurityQuestion, error) {
	var q auth.SecurityQuestion
	if err := s.db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}

	if text := strings.TrimSpace(in.Question); text != "" {
		q.Question = text
	}
	if strings.TrimSpace(in.Answer) != "" {
		q.Answer = in.Answer
	}
	if in.IsActive != nil {
		q.IsActive = *in.IsActive
	}
	if in.DisplayOrder != nil {
		q.DisplayOrder = *in.DisplayOrder
	}

	if err := s.db.WithContext(ctx).Save(&q).Error; err != nil {
		return nil, fmt.Errorf("update security question: %w", err)
	}
	return &q, nil
}

func (s *PortalService) DeleteQuestion(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&auth.SecurityQuestion{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// ReorderQuestions assigns display_order by position. Any unknown id rolls
// back the whole reorder.
func (s *PortalService) ReorderQuestions(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return ErrInvalidReorder
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return ErrInvalidReorder
		}
		seen[id] = struct{}{}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for position, id := range ids {
			result := tx.Model(&auth.SecurityQuestion{}).Where("id = ?", id).UpdateColumn("display_order", position)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrQuestionNotFound
			}
		}
		return nil
	})
}
