// Package auth はメール/パスワード認証とセッション管理を提供する。
//
// 台帳コアから見た「認証プロバイダ」であり、サインイン/サインアウトの
// 状態遷移をオブザーバに通知する。台帳エンジンはこの通知を通じてのみ
// ユーザーの出入りを知る。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/repository"
)

// minPasswordLength はパスワードの最小長。
const minPasswordLength = 6

// StateKind は認証状態遷移の種別を表す。
type StateKind string

const (
	// StateSignedIn はユーザーのサインインを表す。
	StateSignedIn StateKind = "signed_in"
	// StateSignedOut はユーザーのサインアウトを表す。
	StateSignedOut StateKind = "signed_out"
)

// StateChange は認証状態の遷移イベントを表す。
type StateChange struct {
	Kind     StateKind
	Identity model.Identity
}

// StateObserver は認証状態遷移の通知を受け取るコールバック。
type StateObserver func(change StateChange)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig

	obsMu     sync.Mutex
	observers []StateObserver
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// OnStateChanged は認証状態遷移のオブザーバを登録する。
// 登録順に、サインイン/サインアウトの成功後に同期的に呼ばれる。
func (s *Service) OnStateChanged(observer StateObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, observer)
}

// notify は全オブザーバに状態遷移を通知する。
func (s *Service) notify(change StateChange) {
	s.obsMu.Lock()
	observers := make([]StateObserver, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.Unlock()

	for _, observer := range observers {
		observer(change)
	}
}

// SignUp は新規ユーザーを登録し、セッションを発行する。
// メールアドレスが登録済みの場合はEMAIL_TAKENを返す。
// 成功するとsigned-in遷移を通知する。
func (s *Service) SignUp(ctx context.Context, email, username, password string) (*model.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewInvalidCredentialsError()
	}
	if len(password) < minPasswordLength {
		return nil, model.NewWeakPasswordError(minPasswordLength)
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)

	s.notify(StateChange{Kind: StateSignedIn, Identity: model.IdentityOf(user)})
	return session, nil
}

// SignIn はメールアドレスとパスワードでユーザーを認証し、セッションを発行する。
// 未知のメールアドレスとパスワード不一致は区別せず、一律の
// INVALID_CREDENTIALSを返す。成功するとsigned-in遷移を通知する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in", slog.String("user_id", user.ID))

	s.notify(StateChange{Kind: StateSignedIn, Identity: model.IdentityOf(user)})
	return session, nil
}

// SignOut はセッションを破棄する。
// 成功するとsigned-out遷移を通知する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))

	// セッションが既に失効していた場合は対象ユーザーが特定できないため
	// 遷移通知は行わない（台帳バインドも存在しない）。
	if session != nil {
		user, err := s.userRepo.FindByID(ctx, session.UserID)
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}
		if user != nil {
			s.notify(StateChange{Kind: StateSignedOut, Identity: model.IdentityOf(user)})
		}
	}
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
