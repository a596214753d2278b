// Package token は署名付きセッショントークンの発行と検証を提供する。
//
// トークンはHMAC-SHA256で署名されたJWTで、サブジェクトのユーザーIDと
// ユーザー名、発行時刻、有効期限を含む。サーバー側にセッション状態を
// 持たないステートレス認証のため、検証はトークンのバイト列と現在時刻
// のみから決まる純粋な計算となる（ブラックリスト等の参照は行わない）。
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken は署名不一致・形式不正・必須クレーム欠落のトークンに対して返される。
var ErrInvalidToken = errors.New("invalid token")

// Claims はトークンペイロードを表す。
// サブジェクトのユーザーIDはRegisteredClaims.Subjectに文字列として格納する。
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Codec はトークンの発行・解析を行う。
// 署名鍵はプロセス起動時に1回だけ読み込み、以降は読み取り専用とする。
// 同一の鍵で署名と検証を行うため、複数ゴルーチンから同時に呼び出しても安全。
type Codec struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time // テストで差し替えるための時刻関数
}

// NewCodec はCodecを生成する。
// expiryは発行からの有効期間（例: 24時間）。
func NewCodec(secret []byte, expiry time.Duration) *Codec {
	return &Codec{
		secret: secret,
		expiry: expiry,
		now:    time.Now,
	}
}

// Issue はサブジェクトのユーザーIDとユーザー名から署名付きトークンを発行する。
// 発行されたトークンはイミュータブルで、有効期限までの間だけ有効となる。
func (c *Codec) Issue(userID int64, username string) (string, error) {
	now := c.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiry)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Parse はトークンを解析し、サブジェクトのユーザーIDとユーザー名を返す。
// 署名不一致、形式不正、必須クレーム欠落の場合はErrInvalidTokenを返す。
// 有効期限のチェックはここでは行わない（IsValidを使用すること）。
func (c *Codec) Parse(tokenString string) (userID int64, username string, err error) {
	claims, err := c.parseClaims(tokenString)
	if err != nil {
		return 0, "", err
	}

	userID, err = strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: malformed subject claim", ErrInvalidToken)
	}

	return userID, claims.Username, nil
}

// IsValid はトークンが現時点で有効かを返す。
// 解析が成功し、かつ有効期限が現在時刻より厳密に後である場合のみtrueを返す。
// サーバー側の状態は一切参照しない。
func (c *Codec) IsValid(tokenString string) bool {
	claims, err := c.parseClaims(tokenString)
	if err != nil {
		return false
	}
	return claims.ExpiresAt.Time.After(c.now())
}

// parseClaims はトークンの署名検証とクレーム取り出しを行う。
// 署名アルゴリズムはHMACのみを受け付ける（alg混同攻撃の防止）。
func (c *Codec) parseClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.secret, nil
		},
		// 有効期限の判定はIsValid側で行うため、ここでは構造と署名のみ検証する
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid {
		return nil, ErrInvalidToken
	}

	// 必須クレームの欠落チェック
	if claims.Subject == "" || claims.Username == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalidToken)
	}

	return claims, nil
}
