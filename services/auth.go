package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"fitness-crm/models"
	"fitness-crm/monitoring"
)

const minPasswordLength = 8

// compared against when the username is unknown so both paths cost a bcrypt round
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type Sessions interface {
	Create(ctx context.Context, userID uint, ip string) (string, error)
	Touch(ctx context.Context, id string) (uint, error)
	Delete(ctx context.Context, id string, userID uint) error
	DeleteAll(ctx context.Context, userID uint) error
}

type AuthService struct {
	users    models.AccountRepository
	sessions Sessions
	secret   []byte
	maxAge   time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewAuthService(users models.AccountRepository, sessions Sessions, secret string, maxAge time.Duration, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		secret:   []byte(secret),
		maxAge:   maxAge,
		log:      log.WithField("component", "auth"),
		now:      time.Now,
	}
}

func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Login verifies credentials, opens a session for the client at ip and
// returns its signed token.
func (s *AuthService) Login(ctx context.Context, username, password, ip string) (string, *Principal, error) {
	log := s.log.WithFields(logrus.Fields{"username": username, "ip": ip})

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			monitoring.LoginAttempts.WithLabelValues("unknown_user").Inc()
			log.Info("login for unknown user")
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		monitoring.LoginAttempts.WithLabelValues("bad_password").Inc()
		log.Warn("login with wrong password")
		return "", nil, ErrInvalidCredentials
	}

	if !user.Active {
		monitoring.LoginAttempts.WithLabelValues("inactive").Inc()
		log.Warn("login to inactive account")
		return "", nil, ErrInvalidCredentials
	}

	sid, err := s.sessions.Create(ctx, user.ID, ip)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	token, err := s.sign(user.ID, sid, now)
	if err != nil {
		return "", nil, err
	}

	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("failed to record login time")
	}

	monitoring.LoginAttempts.WithLabelValues("success").Inc()
	log.WithField("user_id", user.ID).Info("user logged in")

	return token, principalOf(user, sid), nil
}

func (s *AuthService) sign(userID uint, sid string, now time.Time) (string, error) {
	claims := sessionClaims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (s *AuthService) parse(token string) (*sessionClaims, uint, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, 0, ErrSessionExpired
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || claims.SessionID == "" {
		return nil, 0, ErrSessionExpired
	}

	return &claims, uint(userID), nil
}

// Authenticate resolves a token into the principal it belongs to. The
// session must still exist server side and its user must be active.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, userID, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	owner, err := s.sessions.Touch(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if owner != userID {
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	return principalOf(user, claims.SessionID), nil
}

// Logout closes the token's session. Unknown or expired tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, userID, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.sessions.Delete(ctx, claims.SessionID, userID)
}

// RevokeUser closes every session of the user.
func (s *AuthService) RevokeUser(ctx context.Context, userID uint) error {
	if err := s.sessions.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// ChangePassword lets users replace their own password.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	return s.setPassword(ctx, user, next)
}

// ResetPassword sets a password without knowing the old one.
func (s *AuthService) ResetPassword(ctx context.Context, userID uint, next string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, user, next)
}

func (s *AuthService) setPassword(ctx context.Context, user *models.User, next string) error {
	hashed, err := HashPassword(next)
	if err != nil {
		return err
	}

	user.PasswordHash = hashed
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}

	return s.RevokeUser(ctx, user.ID)
}

// EnsureAdmin seeds the role presets and creates the bootstrap administrator
// when no account with that username exists yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string, presets []RolePreset) error {
	if err := SeedRoles(ctx, s.users, presets); err != nil {
		return err
	}

	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if password == "" {
		s.log.WithField("username", username).Warn("ADMIN_PASSWORD is empty, bootstrap admin not created")
		return nil
	}

	role, err := s.users.GetRoleByName(ctx, AdminRole)
	if err != nil {
		return fmt.Errorf("load %s role: %w", AdminRole, err)
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username:     username,
		PasswordHash: hashed,
		Name:         "Administrator",
		RoleID:       role.ID,
		Active:       true,
	}
	if err := s.users.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	s.log.WithField("username", username).Info("bootstrap admin created")
	return nil
}
