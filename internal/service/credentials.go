package service

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/pu-ac-cn/cas-sso/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier 凭据校验
type CredentialVerifier interface {
	// Verify 校验用户名密码，失败统一返回 ErrInvalidCredentials
	Verify(ctx context.Context, username, password string) (model.Identity, error)
}

// StaticCredentialVerifier 只接受一组固定账号的校验器，密码以 bcrypt 哈希保存
type StaticCredentialVerifier struct {
	username     string
	passwordHash []byte
}

// NewStaticCredentialVerifier 创建固定账号校验器，cost 为 0 时使用 bcrypt.DefaultCost
func NewStaticCredentialVerifier(username, password string, cost int) (*StaticCredentialVerifier, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("用户名和密码不能为空")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("生成密码哈希失败: %w", err)
	}
	return &StaticCredentialVerifier{username: username, passwordHash: hash}, nil
}

// Verify 校验凭据。用户名不匹配时仍执行 bcrypt 比较，响应时间不暴露用户名是否存在
func (v *StaticCredentialVerifier) Verify(_ context.Context, username, password string) (model.Identity, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(v.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", ErrInvalidCredentials
	}
	return model.Identity(v.username), nil
}
