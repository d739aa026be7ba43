package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrChatroomNotFound     = errors.New("chatroom not found")
	ErrChatroomExists       = errors.New("chatroom already exists")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUsernameTaken        = errors.New("registration failed: username already exists")
	ErrPasswordTooShort     = errors.New("password must be at least 8 characters long")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrInternalServer       = errors.New("internal server error")
)
