// Package services contains server-side business logic. SessionService owns
// the refresh credential lifecycle: login, single-use rotation, logout and
// administrative revocation.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/dbx"
	"github.com/dmitrijs2005/fooddelivery/internal/logging"
	"github.com/dmitrijs2005/fooddelivery/internal/server/auth"
	"github.com/dmitrijs2005/fooddelivery/internal/server/limiter"
	"github.com/dmitrijs2005/fooddelivery/internal/server/models"
	"github.com/dmitrijs2005/fooddelivery/internal/server/repositories/repomanager"
)

// SessionPair is what a successful login or refresh hands back to the caller.
type SessionPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *models.User
}

// SessionService issues and rotates credentials. The credential store is
// written only from here.
type SessionService struct {
	db          dbx.DBTX
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	issuer      *auth.Issuer
	hasher      auth.PasswordHasher
	limiter     limiter.LoginLimiter
	logger      logging.Logger
	metrics     *Metrics

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*SessionService)

func WithLimiter(l limiter.LoginLimiter) Option {
	return func(s *SessionService) { s.limiter = l }
}

func WithLogger(l logging.Logger) Option {
	return func(s *SessionService) { s.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *SessionService) { s.metrics = m }
}

// NewSessionService wires the service. db is used outside units of work and
// may be nil for backends that ignore it.
func NewSessionService(db dbx.DBTX, tx dbx.Transactor, m repomanager.RepositoryManager, issuer *auth.Issuer, hasher auth.PasswordHasher, opts ...Option) *SessionService {
	s := &SessionService{
		db:          db,
		tx:          tx,
		repomanager: m,
		issuer:      issuer,
		hasher:      hasher,
		limiter:     limiter.Nop{},
		logger:      logging.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.logger = s.logger.With("module", "services.session")
	return s
}

// Register creates a customer account. Duplicate emails yield
// common.ErrAlreadyExists.
func (s *SessionService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || !strings.Contains(email, "@") || password == "" {
		return nil, common.ErrValidation
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         common.RoleCustomer,
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyExists
		}
		s.logger.Error(ctx, "error creating user", "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies the identity and opens a new session. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *SessionService) Login(ctx context.Context, email, password string) (*SessionPair, error) {
	email = strings.TrimSpace(email)

	if err := s.limiter.Check(ctx, email); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			s.metrics.login(ctx, outcomeThrottled)
			return nil, common.ErrRateLimited
		}
		s.logger.Warn(ctx, "login limiter check failed, continuing", "error", err)
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "error loading user", "error", err)
			s.metrics.login(ctx, outcomeError)
			return nil, common.ErrorInternal
		}
		// keep the timing of unknown users close to wrong passwords
		_ = s.hasher.Compare(s.getDummyHash(ctx), password)
		return nil, s.loginFailed(ctx, email)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, s.loginFailed(ctx, email)
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn(ctx, "login limiter reset failed", "error", err)
	}

	pair, err := s.issuePair(ctx, s.db, user)
	if err != nil {
		s.logger.Error(ctx, "error issuing session", "user_id", user.ID, "error", err)
		s.metrics.login(ctx, outcomeError)
		return nil, common.ErrorInternal
	}

	s.metrics.login(ctx, outcomeSuccess)
	s.logger.Info(ctx, "login", "user_id", user.ID)
	return pair, nil
}

func (s *SessionService) loginFailed(ctx context.Context, email string) error {
	if err := s.limiter.RecordFailure(ctx, email); err != nil {
		s.logger.Warn(ctx, "login limiter record failed", "error", err)
	}
	s.metrics.login(ctx, outcomeRejected)
	return common.ErrAuthenticationFailed
}

// Refresh redeems a refresh credential exactly once. The presented record
// is claimed and revoked in one transaction, then its replacement is stored.
// If storing the replacement fails the old record stays revoked and the
// client has to log in again. Every rejection reason is reported as
// common.ErrInvalidCredential.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*SessionPair, error) {
	userID, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.refresh(ctx, outcomeRejected)
		return nil, common.ErrInvalidCredential
	}

	user, err := s.claim(ctx, userID, auth.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredential) {
			s.metrics.refresh(ctx, outcomeRejected)
			s.logger.Info(ctx, "refresh rejected", "user_id", userID)
			return nil, common.ErrInvalidCredential
		}
		s.metrics.refresh(ctx, outcomeError)
		s.logger.Error(ctx, "refresh failed", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}

	pair, err := s.issuePair(ctx, s.db, user)
	if err != nil {
		s.metrics.refresh(ctx, outcomeError)
		s.logger.Error(ctx, "refresh failed after revocation", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}

	s.metrics.refresh(ctx, outcomeSuccess)
	s.logger.Debug(ctx, "refresh rotated", "user_id", userID)
	return pair, nil
}

// claim revokes the active record matching hash and returns its owner.
// Two callers presenting the same value serialize on the record lock; the
// second one finds nothing active.
func (s *SessionService) claim(ctx context.Context, userID, hash string) (*models.User, error) {
	var user *models.User
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.RefreshTokens(tx)

		current, err := tokens.FindActive(ctx, hash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidCredential
			}
			return fmt.Errorf("error searching refresh token: %w", err)
		}
		if current.UserID != userID {
			return common.ErrInvalidCredential
		}

		if err := tokens.Revoke(ctx, current.ID); err != nil {
			return fmt.Errorf("error revoking refresh token: %w", err)
		}

		user, err = s.repomanager.Users(tx).GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidCredential
			}
			return fmt.Errorf("error loading user: %w", err)
		}
		return nil
	})
	return user, err
}

// Logout revokes the caller's refresh credential when one is given, or all
// of the caller's credentials otherwise. A token that is unknown, inactive
// or owned by someone else is ignored. Logout is idempotent.
func (s *SessionService) Logout(ctx context.Context, userID, refreshToken string) error {
	var err error
	if refreshToken != "" {
		err = s.revokeOne(ctx, userID, refreshToken)
	} else {
		_, err = s.repomanager.RefreshTokens(s.db).RevokeAllForUser(ctx, userID)
	}

	if err != nil {
		s.metrics.logout(ctx, outcomeError)
		s.logger.Error(ctx, "logout failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	s.metrics.logout(ctx, outcomeSuccess)
	s.logger.Info(ctx, "logout", "user_id", userID, "all", refreshToken == "")
	return nil
}

func (s *SessionService) revokeOne(ctx context.Context, userID, refreshToken string) error {
	hash := auth.HashRefreshToken(refreshToken)
	return s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.RefreshTokens(tx)
		current, err := tokens.FindActive(ctx, hash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		if current.UserID != userID {
			return nil
		}
		return tokens.Revoke(ctx, current.ID)
	})
}

// RevokeUserSessions revokes every active refresh credential of target.
// Subjects may always revoke their own sessions; only admins may revoke
// someone else's.
func (s *SessionService) RevokeUserSessions(ctx context.Context, actor auth.Subject, targetUserID string) (int64, error) {
	if actor.UserID != targetUserID && actor.Role != common.RoleAdmin {
		return 0, common.ErrForbidden
	}

	n, err := s.repomanager.RefreshTokens(s.db).RevokeAllForUser(ctx, targetUserID)
	if err != nil {
		s.logger.Error(ctx, "revoke sessions failed", "target_user_id", targetUserID, "error", err)
		return 0, common.ErrorInternal
	}

	s.logger.Info(ctx, "sessions revoked", "actor_user_id", actor.UserID, "target_user_id", targetUserID, "count", n)
	return n, nil
}

func (s *SessionService) issuePair(ctx context.Context, db dbx.DBTX, user *models.User) (*SessionPair, error) {
	subject := SubjectOf(user)

	access, err := s.issuer.IssueAccess(subject)
	if err != nil {
		return nil, fmt.Errorf("error issuing access token: %w", err)
	}
	refresh, err := s.issuer.IssueRefresh(subject)
	if err != nil {
		return nil, fmt.Errorf("error issuing refresh token: %w", err)
	}

	if _, err := s.repomanager.RefreshTokens(db).Create(ctx, user.ID, auth.HashRefreshToken(refresh.Value), refresh.ExpiresAt); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}

	return &SessionPair{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
		User:             user,
	}, nil
}

func (s *SessionService) getDummyHash(ctx context.Context) string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("fooddelivery-dummy-password")
		if err != nil {
			s.logger.Warn(ctx, "dummy hash unavailable", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// SubjectOf maps a stored user to the identity carried in credentials.
func SubjectOf(u *models.User) auth.Subject {
	return auth.Subject{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
