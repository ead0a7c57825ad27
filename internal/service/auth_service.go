package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/medorder/config"
)

const tokenIssuer = "medorder"

// AuthService 管理端口令：bcrypt 校验密码，签发 HS256 JWT
type AuthService interface {
	Enabled() bool
	Login(password string) (token string, expiresAt time.Time, err error)
	Verify(token string) error
}

type authService struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(cfg config.AdminConfig) AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &authService{
		hash:   []byte(cfg.PasswordHash),
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *authService) Enabled() bool { return len(s.hash) > 0 }

func (s *authService) Login(password string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidPassword
	}

	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

func (s *authService) Verify(token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	return nil
}

// HashPassword 生成 bcrypt 哈希，供 adminctl 使用
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", newValidationError("password", "password must be at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
