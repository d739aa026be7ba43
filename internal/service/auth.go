package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/osagie8/tcp-chat/internal/domain"
	"github.com/osagie8/tcp-chat/internal/repository"
)

// MinPasswordLength 是注册时允许的最短密码长度。
const MinPasswordLength = 8

// AuthService 负责用户注册和认证相关的业务逻辑。
// 认证结果只绑定到发起认证的那条连接，不签发跨连接的会话凭证，
// 新连接必须重新认证。
type AuthService struct {
	userRepo repository.UserRepository
}

// NewAuthService 创建 AuthService 实例。
func NewAuthService(userRepo repository.UserRepository) *AuthService {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	return &AuthService{userRepo: userRepo}
}

// Register 处理用户注册。
// 密码短于 MinPasswordLength 返回 ErrPasswordTooShort；
// 用户名已存在返回 ErrUsernameTaken。
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	logCtx := logrus.WithField("username", username)

	// 1. 基本验证
	if username == "" {
		return nil, ErrAuthenticationFailed
	}
	if len(password) < MinPasswordLength {
		logCtx.Warn("Registration rejected: password too short")
		return nil, ErrPasswordTooShort
	}

	// 2. 生成每用户独立的随机盐并哈希密码
	salt, err := generateSalt()
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate salt during registration")
		return nil, ErrInternalServer
	}
	hash, err := hashPassword(password, salt)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternalServer
	}

	// 3. 创建用户对象
	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Salt:         salt,
	}

	// 4. 保存用户 (调用 Repository 接口)
	err = s.userRepo.Save(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration failed: username already exists")
			return nil, ErrUsernameTaken
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered successfully")
	user.PasswordHash = "" // 清除哈希再返回
	return user, nil
}

// Login 处理用户登录。
// 用户不存在与密码错误对调用方统一表现为 ErrAuthenticationFailed。
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	logCtx := logrus.WithField("username", username)

	// 1. 查找用户
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Login attempt failed: User not found")
		} else {
			logCtx.WithError(err).Warn("Login attempt failed: Error finding user")
		}
		return nil, ErrAuthenticationFailed
	}
	// 防御性检查，以防仓库实现返回 nil, nil
	if user == nil {
		logCtx.Warn("Login attempt failed: User not found (repo returned nil user without error)")
		return nil, ErrAuthenticationFailed
	}

	// 2. 用存储的盐重新计算并比较哈希
	if !checkPassword(password, user.Salt, user.PasswordHash) {
		logCtx.Warn("Login attempt failed: Invalid password")
		return nil, ErrAuthenticationFailed
	}

	logCtx.WithField("user_id", user.ID).Info("User logged in successfully")
	return user, nil
}

// --- 私有辅助函数 ---

// generateSalt 生成 16 字节的随机盐，十六进制编码后存储。
func generateSalt() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random salt: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// hashPassword 对盐值前缀的密码做 bcrypt 哈希。
// bcrypt 自带自适应成本；显式盐列保持与既有数据模型兼容。
func hashPassword(password, salt string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(salt+password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

// checkPassword 用存储的盐验证提供的密码是否与哈希匹配
func checkPassword(password, salt, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(salt+password))
	return err == nil
}
