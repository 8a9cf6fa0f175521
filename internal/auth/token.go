package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/notekeeper/internal/model"
)

var (
	// ErrInvalidToken は署名・発行者・対象者の検証に失敗したトークンを表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired は有効期限切れのトークンを表す。errors.Is(err, ErrInvalidToken)も真になる。
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrInvalidToken)
)

// Claims はセッショントークンのペイロード。
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenConfig はトークン発行の設定。
type TokenConfig struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
}

// TokenIssuer はHS256署名のセッショントークンを発行・検証する。
// サーバー側にトークンは保存しない。
type TokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(cfg.Secret),
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
}

// IssuedToken は発行済みトークンと有効期限。
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// Issue はユーザーIDとメールアドレスを含むトークンを発行する。
func (t *TokenIssuer) Issue(userID, email string) (*IssuedToken, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        model.NewID(),
			Subject:   userID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Parse はトークンを検証してClaimsを返す。
// 失敗時はErrInvalidTokenまたはErrTokenExpiredを返す。
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, ok := model.ParseID(claims.UserID); !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
