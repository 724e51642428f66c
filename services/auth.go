package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/smtp"
	"net/url"
	"sync"
	"time"

	"github.com/CrowderSoup/agenda-app/config"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const magicLinkTTL = 15 * time.Minute

type magicToken struct {
	email   string
	expires time.Time
}

// Claims identify the agenda owner. The user id is the login email.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type AuthService struct {
	mu        sync.Mutex
	tokens    map[string]magicToken
	jwtSecret []byte
	tokenTTL  time.Duration
	smtp      config.SMTPConfig
	devLinks  bool
	logger    *zap.Logger
	now       func() time.Time
	mail      func(to, magicLink string) error
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuthService{
		tokens:    make(map[string]magicToken),
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  config.Duration(cfg.TokenTTL, 7*24*time.Hour),
		smtp:      cfg.SMTP,
		devLinks:  cfg.DevLinks,
		logger:    logger,
		now:       time.Now,
	}
	s.mail = s.sendMagicLinkEmail
	return s
}

// DevLinks reports whether login responses may include the magic link.
func (s *AuthService) DevLinks() bool {
	return s.devLinks
}

// GenerateMagicLink creates a one-time token and mails the login link when
// SMTP is configured. The returned link must only reach the caller when
// DevLinks is set.
func (s *AuthService) GenerateMagicLink(email, baseURL string) (string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.mu.Lock()
	now := s.now()
	for t, mt := range s.tokens {
		if now.After(mt.expires) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = magicToken{email: email, expires: now.Add(magicLinkTTL)}
	s.mu.Unlock()

	magicLink := fmt.Sprintf("%s/api/auth/magic-link?token=%s", baseURL, url.QueryEscape(token))

	if s.smtp.Host != "" {
		if err := s.mail(email, magicLink); err != nil {
			s.logger.Warn("failed to send magic link email", zap.String("email", email), zap.Error(err))
		}
	}
	return magicLink, nil
}

// VerifyMagicLinkToken consumes a one-time token and returns its email.
func (s *AuthService) VerifyMagicLinkToken(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mt, ok := s.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	delete(s.tokens, token)
	if s.now().After(mt.expires) {
		return "", ErrInvalidToken
	}
	return mt.email, nil
}

// CreateJWT signs a session token for userID.
func (s *AuthService) CreateJWT(userID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})

	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyJWT checks a session token and returns its user id.
func (s *AuthService) VerifyJWT(tokenString string) (string, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.Email
	}
	if userID == "" {
		return "", errors.New("subject claim missing")
	}
	return userID, nil
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (s *AuthService) sendMagicLinkEmail(to, magicLink string) error {
	if s.smtp.Host == "" || s.smtp.Port == "" ||
		s.smtp.Username == "" || s.smtp.Password == "" {
		return errors.New("SMTP not fully configured")
	}

	auth := smtp.PlainAuth("", s.smtp.Username, s.smtp.Password, s.smtp.Host)

	from := s.smtp.From
	if from == "" {
		from = s.smtp.Username
	}

	subject := "Your Agenda login link"
	body := fmt.Sprintf("Click the link below to open your agenda:\n\n%s\n\nThe link expires in %s. If you didn't request it, you can safely ignore this email.",
		magicLink, magicLinkTTL)
	message := fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n\n%s", from, to, subject, body)

	addr := fmt.Sprintf("%s:%s", s.smtp.Host, s.smtp.Port)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
