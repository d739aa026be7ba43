package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/osagie8/tcp-chat/internal/domain"
	"github.com/osagie8/tcp-chat/internal/repository"
	"github.com/osagie8/tcp-chat/internal/repository/mocks"
	"github.com/osagie8/tcp-chat/internal/service"
)

func TestRegister_Success(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)
	ctx := context.Background()

	var savedUser *domain.User
	mockUserRepo.On("Save", ctx, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) {
			savedUser = args.Get(1).(*domain.User)
			savedUser.ID = 1
		}).
		Return(nil).Once()

	user, err := authService.Register(ctx, "alice", "password123")

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, uint(1), user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.PasswordHash, "返回的用户对象不应携带密码哈希")

	// 落库的记录应包含每用户独立的盐和可验证的哈希
	require.NotNil(t, savedUser)
	assert.Len(t, savedUser.Salt, 32) // 16 字节盐的十六进制编码
	err = bcrypt.CompareHashAndPassword([]byte(savedUser.PasswordHash), []byte(savedUser.Salt+"password123"))
	assert.NoError(t, err, "存储的哈希应能用盐+密码验证通过")

	mockUserRepo.AssertExpectations(t)
}

func TestRegister_PasswordTooShort(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)

	// 7 个字符，比最短长度少 1
	user, err := authService.Register(context.Background(), "alice", "short12")

	assert.ErrorIs(t, err, service.ErrPasswordTooShort)
	assert.Nil(t, user)
	mockUserRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRegister_PasswordExactlyMinLength(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)
	ctx := context.Background()

	mockUserRepo.On("Save", ctx, mock.AnythingOfType("*domain.User")).Return(nil).Once()

	// 恰好 8 个字符，应被接受
	_, err := authService.Register(ctx, "alice", "exactly8")

	assert.NoError(t, err)
	mockUserRepo.AssertExpectations(t)
}

func TestRegister_UsernameTaken(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)
	ctx := context.Background()

	mockUserRepo.On("Save", ctx, mock.AnythingOfType("*domain.User")).
		Return(repository.ErrDuplicateEntry).Once()

	user, err := authService.Register(ctx, "alice", "password123")

	assert.ErrorIs(t, err, service.ErrUsernameTaken)
	assert.Nil(t, user)
	mockUserRepo.AssertExpectations(t)
}

func TestRegister_EmptyUsername(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)

	user, err := authService.Register(context.Background(), "", "password123")

	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Nil(t, user)
}

// newStoredUser 构造一个带真实 bcrypt 哈希的已注册用户
func newStoredUser(t *testing.T, id uint, username, password, salt string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(salt+password), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{
		ID:           id,
		Username:     username,
		PasswordHash: string(hash),
		Salt:         salt,
	}
}

func TestLogin_Success(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)
	ctx := context.Background()

	stored := newStoredUser(t, 7, "bob", "password123", "aabbccdd")
	mockUserRepo.On("FindByUsername", ctx, "bob").Return(stored, nil).Once()

	user, err := authService.Login(ctx, "bob", "password123")

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, uint(7), user.ID)
	mockUserRepo.AssertExpectations(t)
}

func TestLogin_WrongPassword(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)
	ctx := context.Background()

	stored := newStoredUser(t, 7, "bob", "password123", "aabbccdd")
	mockUserRepo.On("FindByUsername", ctx, "bob").Return(stored, nil).Once()

	user, err := authService.Login(ctx, "bob", "wrongpass123")

	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Nil(t, user)
	mockUserRepo.AssertExpectations(t)
}

func TestLogin_UserNotFound(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)
	ctx := context.Background()

	mockUserRepo.On("FindByUsername", ctx, "ghost").
		Return(nil, repository.ErrUserNotFound).Once()

	// 用户不存在与密码错误对调用方不可区分
	user, err := authService.Login(ctx, "ghost", "password123")

	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Nil(t, user)
	mockUserRepo.AssertExpectations(t)
}

func TestLogin_SaltIsolation(t *testing.T) {
	mockUserRepo := new(mocks.MockUserRepository)
	authService := service.NewAuthService(mockUserRepo)
	ctx := context.Background()

	// 哈希是用另一份盐算出来的，即使密码相同也不应通过
	hash, err := bcrypt.GenerateFromPassword([]byte("othersalt"+"password123"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := &domain.User{ID: 7, Username: "bob", PasswordHash: string(hash), Salt: "aabbccdd"}
	mockUserRepo.On("FindByUsername", ctx, "bob").Return(stored, nil).Once()

	user, err := authService.Login(ctx, "bob", "password123")

	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Nil(t, user)
}
