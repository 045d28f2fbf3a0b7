package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const maxAge = 120

type RegisterInput struct {
	Email         string  `validate:"required,email"`
	Password      string  `validate:"required,min=6"`
	Phone         string  `validate:"required,min=6"`
	Age           string  `validate:"required,numeric"`
	Name          *string `validate:"omitempty,max=120"`
	ElevationCode string
	Locale        string
}

type RegisterResult struct {
	Account          *Account
	Token            string
	ExpiresAt        time.Time
	VerificationSent bool
}

type LoginResult struct {
	Account   *Account
	Token     string
	ExpiresAt time.Time
}

type ResetPasswordInput struct {
	Email       string `validate:"required,email"`
	OTP         string `validate:"required"`
	NewPassword string `validate:"required,min=6"`
}

// ProfileUpdate is the self-service edit. Role cannot be changed through it.
type ProfileUpdate struct {
	Name  *string `validate:"omitempty,max=120"`
	Phone *string `validate:"omitempty,min=6"`
	Age   *int    `validate:"omitempty,min=0,max=120"`
}

type CredentialDeps struct {
	Store     AccountStore
	Hasher    PasswordHasher
	Tokens    *TokenCodec
	OTP       *OTPManager
	Mailer    Mailer
	Templates Templates
	Logger    *slog.Logger
	// ElevationCode grants the admin role at registration. Empty disables elevation.
	ElevationCode string
}

// CredentialService orchestrates registration, login and the OTP-backed flows.
type CredentialService struct {
	store         AccountStore
	hasher        PasswordHasher
	tokens        *TokenCodec
	otp           *OTPManager
	mailer        Mailer
	templates     Templates
	logger        *slog.Logger
	elevationCode string
	validate      *validator.Validate

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialService(deps CredentialDeps) (*CredentialService, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("account store is required")
	case deps.Hasher == nil:
		return nil, errors.New("password hasher is required")
	case deps.Tokens == nil:
		return nil, errors.New("token codec is required")
	case deps.OTP == nil:
		return nil, errors.New("otp manager is required")
	case deps.Mailer == nil:
		return nil, errors.New("mailer is required")
	case deps.Templates == nil:
		return nil, errors.New("templates are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		store:         deps.Store,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		otp:           deps.OTP,
		mailer:        deps.Mailer,
		templates:     deps.Templates,
		logger:        logger,
		elevationCode: deps.ElevationCode,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := s.check(in); err != nil {
		return nil, err
	}
	age, err := strconv.Atoi(in.Age)
	if err != nil {
		return nil, invalid("Age", "age must be a whole number")
	}
	if age < 0 || age > maxAge {
		return nil, invalid("Age", fmt.Sprintf("age must be between 0 and %d", maxAge))
	}

	existing, err := s.store.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &Account{
		Email:        in.Email,
		PasswordHash: hashed,
		Name:         in.Name,
		Phone:        in.Phone,
		Age:          age,
		Role:         s.resolveRole(in.ElevationCode),
		IsVerified:   false,
	}
	if err := s.store.Insert(ctx, account); err != nil {
		return nil, err
	}

	// The account exists from here on; notification problems are reported but
	// never undo the registration.
	verificationSent := true
	if _, err := s.otp.Issue(ctx, account, PurposeVerify, in.Locale); err != nil {
		verificationSent = false
		s.logger.WarnContext(ctx, "register: verification otp not delivered", "account_id", account.ID, "error", err)
	}
	s.sendWelcome(ctx, account, in.Locale)

	token, expires, err := s.tokens.Issue(account.ID)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{
		Account:          account.Sanitized(),
		Token:            token,
		ExpiresAt:        expires,
		VerificationSent: verificationSent,
	}, nil
}

func (s *CredentialService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid("Email", "email and password are required")
	}

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		s.hasher.Compare(s.dummy(), password)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Compare(account.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !account.IsVerified {
		return nil, ErrNotVerified
	}

	token, expires, err := s.tokens.Issue(account.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Account: account.Sanitized(), Token: token, ExpiresAt: expires}, nil
}

// IsAuthenticated resolves a session token to its account without secret fields.
func (s *CredentialService) IsAuthenticated(ctx context.Context, token string) (*Account, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	account, err := s.store.FindByID(ctx, claims.AccountID())
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrUnauthorized
	}
	return account.Sanitized(), nil
}

func (s *CredentialService) SendVerifyOTP(ctx context.Context, accountID, locale string) error {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if account.IsVerified {
		return ErrAlreadyVerified
	}
	_, err = s.otp.Issue(ctx, account, PurposeVerify, locale)
	return err
}

func (s *CredentialService) VerifyAccount(ctx context.Context, accountID, code string) error {
	if code == "" {
		return invalid("OTP", "otp is required")
	}
	account, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if account.IsVerified {
		return ErrAlreadyVerified
	}
	verified := true
	return s.otp.Consume(ctx, account, PurposeVerify, code, AccountUpdate{IsVerified: &verified})
}

// SendResetOTP mails a reset code. Unknown addresses succeed silently so the
// endpoint does not reveal which emails are registered.
func (s *CredentialService) SendResetOTP(ctx context.Context, email, locale string) error {
	email = NormalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return invalid("Email", "a valid email is required")
	}
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account == nil {
		return nil
	}
	_, err = s.otp.Issue(ctx, account, PurposeReset, locale)
	return err
}

func (s *CredentialService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = NormalizeEmail(in.Email)
	if err := s.check(in); err != nil {
		return err
	}
	account, err := s.store.FindByEmail(ctx, in.Email)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrInvalidCode
	}

	hashed, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.otp.Consume(ctx, account, PurposeReset, in.OTP, AccountUpdate{PasswordHash: &hashed})
}

func (s *CredentialService) GetAccount(ctx context.Context, id string) (*Account, error) {
	account, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return account.Sanitized(), nil
}

func (s *CredentialService) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*Account, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	update := AccountUpdate{Name: in.Name, Phone: in.Phone, Age: in.Age}
	if !update.Empty() {
		if err := s.store.UpdateFields(ctx, id, update, nil); err != nil {
			return nil, err
		}
	}
	return s.GetAccount(ctx, id)
}

func (s *CredentialService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *CredentialService) load(ctx context.Context, id string) (*Account, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}
	return account, nil
}

func (s *CredentialService) resolveRole(code string) Role {
	if s.elevationCode == "" || code == "" {
		return RoleUser
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(s.elevationCode)) == 1 {
		return RoleAdmin
	}
	return RoleUser
}

func (s *CredentialService) sendWelcome(ctx context.Context, account *Account, locale string) {
	name := ""
	if account.Name != nil {
		name = *account.Name
	}
	subject, html := s.templates.Welcome(locale, name, account.Email, account.Phone)
	if err := s.mailer.Send(ctx, account.Email, subject, html); err != nil {
		s.logger.WarnContext(ctx, "register: welcome email not delivered", "account_id", account.ID, "error", err)
	}
}

// dummy returns a hash to compare against when the email is unknown, so both
// failure paths cost one bcrypt comparison.
func (s *CredentialService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}

func (s *CredentialService) check(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return invalid(fe.Field(), validationMessage(fe))
	}
	return invalid("", "invalid input")
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return "Missing Details: " + field + " is required"
	case "email":
		return "invalid email address"
	case "numeric":
		return field + " must be numeric"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
