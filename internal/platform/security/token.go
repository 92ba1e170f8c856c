// Package security は公開 ID、メールアドレス確認用トークン、パスワードハッシュを提供します。
package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// TokenIssuer は公開 ID と、有効期限を埋め込んだ確認用トークンを発行します。
// 確認用トークンは HS256 で署名された JWT で、subject に AccountID を持ちます。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption は TokenIssuer の任意設定です。
type TokenOption func(*TokenIssuer)

// WithTimeFunc は現在時刻の取得元を差し替えます。
func WithTimeFunc(fn func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenIssuer は TokenIssuer を生成します。
func NewTokenIssuer(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("security: token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("security: token ttl must be positive")
	}

	t := &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewID は英数字からなる長さ length のランダムな ID を生成します。
func (t *TokenIssuer) NewID(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("security: id length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(idAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("security: read random: %w", err)
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NewVerificationToken は accountID を subject とする確認用トークンを発行します。
func (t *TokenIssuer) NewVerificationToken(accountID string) (string, error) {
	if accountID == "" {
		return "", errors.New("security: account id is required")
	}

	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("security: sign verification token: %w", err)
	}
	return signed, nil
}

// IsExpired はトークンが期限切れかどうかを返します。
// 署名不正や形式不正など検証できないトークンも期限切れとして扱います。
func (t *TokenIssuer) IsExpired(token string) bool {
	_, err := t.parse(token)
	return err != nil
}

// Subject は有効なトークンから AccountID を取り出します。
func (t *TokenIssuer) Subject(token string) (string, error) {
	claims, err := t.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (t *TokenIssuer) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("security: parse verification token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("security: verification token is invalid")
	}
	return claims, nil
}
