package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/config"
	"github.com/saber-em-movimento/backend/internal/domain"
	"github.com/saber-em-movimento/backend/internal/events"
	"github.com/saber-em-movimento/backend/internal/identity"
	"github.com/saber-em-movimento/backend/internal/observability"
	"github.com/saber-em-movimento/backend/internal/repository"
	apperrors "github.com/saber-em-movimento/backend/pkg/util"
)

var nationalIDPattern = regexp.MustCompile(`^\d{11}$`)

const birthDateLayout = "2006-01-02"

// Login strategies, reported in logs and events.
const (
	StrategyIdentifier = "identifier"
	StrategyNationalID = "national_id"
)

// AuthService coordinates registration, login and secret management.
type AuthService struct {
	users       repository.UserRepository
	resets      repository.PasswordResetRepository
	provider    identity.Provider
	synth       *auth.IdentifierSynthesizer
	hasher      *auth.Hasher
	cache       auth.TokenCache
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	callTimeout time.Duration
	resetTTL    time.Duration
	compensate  bool
	now         func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	Provider          identity.Provider
	TokenCache        auth.TokenCache
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	cache := deps.TokenCache
	if cache == nil {
		cache = auth.NopTokenCache{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.UserRepo,
		resets:      deps.PasswordResetRepo,
		provider:    deps.Provider,
		synth:       auth.NewIdentifierSynthesizer(cfg.Auth.IdentifierKey, cfg.Auth.IdentifierDomain),
		hasher:      auth.NewHasher(cfg.Auth.BcryptCost),
		cache:       cache,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		callTimeout: cfg.Auth.CallTimeout(),
		resetTTL:    cfg.Auth.PasswordResetTTL(),
		compensate:  cfg.Auth.CompensateOrphans,
		now:         time.Now,
	}
}

// RegisterInput is the registration payload. A nil or empty Secret defaults
// to the national id.
type RegisterInput struct {
	FullName   string
	NationalID string
	Role       string
	BirthDate  string
	Secret     *string
}

// RegisterResult is returned to the client after registration.
type RegisterResult struct {
	UserID     string
	Identifier string
}

// Register validates the input, creates the identity account and persists the
// directory record keyed by the provider id.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	fullName := sanitizeText(in.FullName)
	nationalID := strings.TrimSpace(in.NationalID)
	role := domain.Role(strings.TrimSpace(in.Role))
	birthDate := strings.TrimSpace(in.BirthDate)

	if fullName == "" || nationalID == "" || role == "" || birthDate == "" {
		return nil, apperrors.NewValidationError("missing_fields", "fullName, nationalId, role and birthDate are required")
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid_role", "role must be student or teacher")
	}
	if !nationalIDPattern.MatchString(nationalID) {
		return nil, apperrors.NewValidationError("invalid_national_id", "nationalId must have exactly 11 digits")
	}
	if _, err := time.Parse(birthDateLayout, birthDate); err != nil {
		return nil, apperrors.NewValidationError("invalid_birth_date", "birthDate must be YYYY-MM-DD")
	}
	secret := nationalID
	if in.Secret != nil && *in.Secret != "" {
		secret = *in.Secret
	}
	if err := validateSecret(secret); err != nil {
		return nil, err
	}

	if err := s.ensurePairFree(ctx, nationalID, role); err != nil {
		return nil, err
	}

	identifier := s.synth.Synthesize(nationalID, role, secret)

	callCtx, cancel := s.callContext(ctx)
	externalID, err := s.provider.CreateAccount(callCtx, identifier, secret)
	cancel()
	switch {
	case errors.Is(err, identity.ErrAlreadyExists):
		return nil, apperrors.NewConflict("identifier_taken", "an account with this identifier already exists")
	case errors.Is(err, identity.ErrInvalidIdentifier):
		return nil, apperrors.NewValidationError("invalid_identifier", "derived identifier is not a valid address")
	case err != nil:
		return nil, apperrors.NewDependencyError("identity_unavailable", err)
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, s.orphaned(ctx, externalID, identifier, "hash", err)
	}

	user := &domain.User{
		ID:           externalID,
		NationalID:   nationalID,
		Role:         role,
		FullName:     fullName,
		BirthDate:    birthDate,
		Identifier:   identifier,
		PasswordHash: hash,
	}
	callCtx, cancel = s.callContext(ctx)
	err = s.users.Create(callCtx, user)
	cancel()
	if err != nil {
		return nil, s.orphaned(ctx, externalID, identifier, "directory", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("national_id", observability.MaskNationalID(nationalID)),
		zap.String("role", string(role)))
	s.publish(ctx, events.EventUserRegistered, user.ID, events.UserRegisteredPayload{Role: role, Identifier: identifier})

	return &RegisterResult{UserID: user.ID, Identifier: identifier}, nil
}

func (s *AuthService) ensurePairFree(ctx context.Context, nationalID string, role domain.Role) error {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	_, err := s.users.GetByNationalIDAndRole(callCtx, nationalID, role)
	switch {
	case err == nil:
		return apperrors.NewConflict("already_registered", "a user with this national id and role already exists")
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return apperrors.NewDependencyError("directory_unavailable", err)
	}
}

// orphaned handles an identity account created without its directory record.
// With compensation enabled the account is deleted; otherwise, or when the
// delete fails, the failure is queued for reconciliation.
func (s *AuthService) orphaned(ctx context.Context, externalID, identifier, stage string, cause error) error {
	detached := context.WithoutCancel(ctx)

	if s.compensate {
		callCtx, cancel := s.callContext(detached)
		err := s.provider.DeleteAccount(callCtx, externalID)
		cancel()
		if err == nil {
			s.logger.Warn("registration rolled back",
				zap.String("user_id", externalID),
				zap.String("stage", stage),
				zap.Error(cause))
			if errors.Is(cause, repository.ErrDuplicate) {
				return apperrors.NewConflict("already_registered", "a user with this national id and role already exists")
			}
			return apperrors.NewDependencyError("directory_unavailable", cause)
		}
		s.logger.Error("compensating delete failed", zap.String("user_id", externalID), zap.Error(err))
	}

	s.logger.Error("registration left orphaned identity account",
		zap.String("user_id", externalID),
		zap.String("stage", stage),
		zap.Error(cause))
	s.publish(detached, events.EventRegistrationOrphaned, externalID, events.RegistrationOrphanedPayload{
		ExternalID: externalID,
		Identifier: identifier,
		Stage:      stage,
		Reason:     reasonOf(cause),
	})
	return apperrors.NewPartialFailure("registration_incomplete",
		map[string]any{"userId": externalID, "stage": stage}, cause)
}

// LoginInput carries either Identifier, or NationalID and Role, plus Secret.
type LoginInput struct {
	Identifier string
	NationalID string
	Role       string
	Secret     string
}

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	UserID     string
	Token      string
	ExpiresAt  time.Time
	Role       domain.Role
	FullName   string
	Identifier string
}

// Login authenticates by identifier (strategy A) or by national id and role
// (strategy B) and issues a session token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	identifier := strings.ToLower(strings.TrimSpace(in.Identifier))
	nationalID := strings.TrimSpace(in.NationalID)
	role := domain.Role(strings.TrimSpace(in.Role))

	var (
		user     *domain.User
		strategy string
		err      error
	)
	switch {
	case identifier != "" && (nationalID != "" || role != ""):
		return nil, apperrors.NewValidationError("ambiguous_credentials", "send either identifier or nationalId and role")
	case identifier != "":
		if in.Secret == "" {
			return nil, apperrors.NewValidationError("missing_fields", "identifier and secret are required")
		}
		strategy = StrategyIdentifier
		user, err = s.loginByIdentifier(ctx, identifier, in.Secret)
	case nationalID != "" || role != "":
		if nationalID == "" || role == "" || in.Secret == "" {
			return nil, apperrors.NewValidationError("missing_fields", "nationalId, role and secret are required")
		}
		if !role.Valid() {
			return nil, apperrors.NewValidationError("invalid_role", "role must be student or teacher")
		}
		if !nationalIDPattern.MatchString(nationalID) {
			return nil, apperrors.NewValidationError("invalid_national_id", "nationalId must have exactly 11 digits")
		}
		strategy = StrategyNationalID
		user, err = s.loginByNationalID(ctx, nationalID, role, in.Secret)
	default:
		return nil, apperrors.NewValidationError("missing_fields", "credentials are required")
	}
	if err != nil {
		return nil, err
	}

	token, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("strategy", strategy))
	s.publish(ctx, events.EventUserLoggedIn, user.ID, events.UserLoggedInPayload{Strategy: strategy})

	return &LoginResult{
		UserID:     user.ID,
		Token:      token.Value,
		ExpiresAt:  token.ExpiresAt,
		Role:       user.Role,
		FullName:   user.FullName,
		Identifier: user.Identifier,
	}, nil
}

func (s *AuthService) loginByIdentifier(ctx context.Context, identifier, secret string) (*domain.User, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	user, err := s.users.GetByIdentifier(callCtx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.VerifyMissing(secret)
		return nil, apperrors.NewAuthError("invalid_credentials")
	}
	if err != nil {
		return nil, apperrors.NewDependencyError("directory_unavailable", err)
	}
	if !s.hasher.Verify(secret, user.PasswordHash) {
		return nil, apperrors.NewAuthError("invalid_credentials")
	}
	return user, nil
}

func (s *AuthService) loginByNationalID(ctx context.Context, nationalID string, role domain.Role, secret string) (*domain.User, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	user, err := s.users.GetByNationalIDAndRole(callCtx, nationalID, role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewAuthError("not_found")
	}
	if err != nil {
		return nil, apperrors.NewDependencyError("directory_unavailable", err)
	}
	if !s.hasher.Verify(secret, user.PasswordHash) {
		return nil, apperrors.NewAuthError("invalid_credentials")
	}
	return user, nil
}

// issueSession asks the provider for a token and records it as the user's
// current token, evicting the previous one from the cache.
func (s *AuthService) issueSession(ctx context.Context, user *domain.User) (identity.Token, error) {
	callCtx, cancel := s.callContext(ctx)
	token, err := s.provider.IssueToken(callCtx, user.ID)
	cancel()
	if err != nil {
		return identity.Token{}, apperrors.NewDependencyError("token_issuance_failed", err)
	}

	if user.CurrentToken != "" {
		s.evict(ctx, user.CurrentToken)
	}

	callCtx, cancel = s.callContext(ctx)
	err = s.users.SetCurrentToken(callCtx, user.ID, token.Value, &token.ExpiresAt)
	cancel()
	if err != nil {
		return identity.Token{}, apperrors.NewDependencyError("session_persist_failed", err)
	}
	return token, nil
}

// Me loads the directory record of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	user, err := s.users.GetByID(callCtx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("user", nil)
	}
	if err != nil {
		return nil, apperrors.NewDependencyError("directory_unavailable", err)
	}
	return user, nil
}

// ResetGrant is a single-use permission to replace a user's secret.
type ResetGrant struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// VerifyUserForReset checks identifier and birth date and issues a reset token.
func (s *AuthService) VerifyUserForReset(ctx context.Context, identifier, birthDate string) (*ResetGrant, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	birthDate = strings.TrimSpace(birthDate)
	if identifier == "" || birthDate == "" {
		return nil, apperrors.NewValidationError("missing_fields", "identifier and birthDate are required")
	}

	callCtx, cancel := s.callContext(ctx)
	user, err := s.users.GetByIdentifier(callCtx, identifier)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewAuthError("invalid_credentials")
	}
	if err != nil {
		return nil, apperrors.NewDependencyError("directory_unavailable", err)
	}
	if user.BirthDate != birthDate {
		return nil, apperrors.NewAuthError("invalid_credentials")
	}

	reset := &domain.PasswordReset{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	callCtx, cancel = s.callContext(ctx)
	err = s.resets.Create(callCtx, reset)
	cancel()
	if err != nil {
		return nil, apperrors.NewDependencyError("directory_unavailable", err)
	}

	s.logger.Info("password reset granted", zap.String("user_id", user.ID))
	return &ResetGrant{UserID: user.ID, Token: reset.Token, ExpiresAt: reset.ExpiresAt}, nil
}

// ResetPassword redeems a reset token. The derived identifier is kept as is.
// Clearing the current token revokes the session for both token kinds, since
// the provider strategy also requires a JWT to be the user's current token.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newSecret string) error {
	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" || newSecret == "" {
		return apperrors.NewValidationError("missing_fields", "resetToken and newSecret are required")
	}
	if err := validateSecret(newSecret); err != nil {
		return err
	}

	callCtx, cancel := s.callContext(ctx)
	reset, err := s.resets.GetByToken(callCtx, resetToken)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewAuthError("invalid_token")
	}
	if err != nil {
		return apperrors.NewDependencyError("directory_unavailable", err)
	}
	if !reset.Usable(s.now()) {
		return apperrors.NewAuthError("invalid_token")
	}

	user, err := s.Me(ctx, reset.UserID)
	if err != nil {
		return err
	}
	if err := s.replaceSecret(ctx, user, newSecret); err != nil {
		return err
	}

	callCtx, cancel = s.callContext(ctx)
	err = s.users.SetCurrentToken(callCtx, user.ID, "", nil)
	cancel()
	if err != nil {
		s.logger.Warn("failed to revoke session after reset", zap.String("user_id", user.ID), zap.Error(err))
	}
	if user.CurrentToken != "" {
		s.evict(ctx, user.CurrentToken)
	}

	callCtx, cancel = s.callContext(ctx)
	err = s.resets.MarkUsed(callCtx, reset.ID)
	cancel()
	if err != nil {
		return apperrors.NewDependencyError("directory_unavailable", err)
	}

	s.publish(ctx, events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{ViaReset: true})
	return nil
}

// ChangePassword replaces the secret of an authenticated user after checking
// the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentSecret, newSecret string) error {
	if currentSecret == "" || newSecret == "" {
		return apperrors.NewValidationError("missing_fields", "currentSecret and newSecret are required")
	}
	if err := validateSecret(newSecret); err != nil {
		return err
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(currentSecret, user.PasswordHash) {
		return apperrors.NewAuthError("invalid_credentials")
	}
	if err := s.replaceSecret(ctx, user, newSecret); err != nil {
		return err
	}

	s.publish(ctx, events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{ViaReset: false})
	return nil
}

// replaceSecret updates the identity account first and then the directory
// hash; a failure between the two leaves them out of sync.
func (s *AuthService) replaceSecret(ctx context.Context, user *domain.User, newSecret string) error {
	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	callCtx, cancel := s.callContext(ctx)
	err = s.provider.UpdateAccountSecret(callCtx, user.ID, newSecret)
	cancel()
	if err != nil {
		return apperrors.NewDependencyError("identity_unavailable", err)
	}

	callCtx, cancel = s.callContext(ctx)
	err = s.users.UpdatePasswordHash(callCtx, user.ID, hash)
	cancel()
	if err != nil {
		s.logger.Error("secret updated in identity provider only", zap.String("user_id", user.ID), zap.Error(err))
		return apperrors.NewPartialFailure("secret_out_of_sync",
			map[string]any{"userId": user.ID, "stage": "directory"}, err)
	}

	s.logger.Info("secret replaced", zap.String("user_id", user.ID))
	return nil
}

// Logout clears the user's current token.
func (s *AuthService) Logout(ctx context.Context, userID, token string) error {
	callCtx, cancel := s.callContext(ctx)
	err := s.users.SetCurrentToken(callCtx, userID, "", nil)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("user", nil)
	}
	if err != nil {
		return apperrors.NewDependencyError("directory_unavailable", err)
	}
	s.evict(ctx, token)
	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

func (s *AuthService) evict(ctx context.Context, token string) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.cache.Delete(callCtx, token); err != nil {
		s.logger.Warn("token cache eviction failed", zap.Error(err))
	}
}

func (s *AuthService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, userID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	})
}

func validateSecret(secret string) error {
	if len(secret) > auth.MaxSecretBytes {
		return apperrors.NewValidationError("invalid_secret", "secret must be at most 72 bytes")
	}
	return nil
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, auth.ErrHashFailed):
		return "hash_failed"
	case errors.Is(err, repository.ErrDuplicate):
		return "duplicate"
	default:
		return "directory_error"
	}
}
