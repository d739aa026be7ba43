// Package protocol 定义了线协议的命令语法和解析。
//
// 语法: /<verb>[ <arg>][ <free text>]
// 动词区分大小写，参数以空格分隔，第二个空格之后的所有内容
// 作为自由文本 (消息正文) 原样保留。不接受自由文本的动词
// 收到多余输入时报参数错误，而不是静默截断。
// 命令和响应均为 UTF-8 文本、按行分帧 (以 '\n' 结尾)。
package protocol

import (
	"errors"
	"strings"
)

// 协议动词
const (
	VerbRegister          = "/register"
	VerbLogin             = "/login"
	VerbCreateChatroom    = "/create_chatroom"
	VerbJoinChatroom      = "/join_chatroom"
	VerbChatroomMessage   = "/chatroom_message"
	VerbViewChatroomUsers = "/view_chatroom_users"
	VerbChatroomView      = "/chatroom_view"
	VerbExitChatroom      = "/exit_chatroom"
	VerbSendPrivate       = "/send_private"
	VerbGetMessages       = "/get_messages"
	VerbMarkRead          = "/mark_read"
	VerbExit              = "/exit"
)

var (
	// ErrEmpty 表示输入为空行。
	ErrEmpty = errors.New("protocol: empty command")
	// ErrNotCommand 表示输入没有以 '/' 开头。
	ErrNotCommand = errors.New("protocol: input is not a command")
	// ErrUnknownVerb 表示动词不在协议定义内。
	ErrUnknownVerb = errors.New("protocol: unknown verb")
	// ErrBadArguments 表示参数数量与动词要求不符。
	ErrBadArguments = errors.New("protocol: wrong argument count")
)

// Command 表示一条已解析的客户端命令。
type Command struct {
	Verb string // 动词，含前导 '/'
	Arg  string // 第一个参数 (聊天室名、用户名、消息 ID 等)
	Body string // 第二个空格之后的自由文本
}

// shape 描述一个动词要求的参数形态。
type shape struct {
	needArg  bool // 要求至少一个参数
	needBody bool // 要求参数之后还有自由文本
}

// verbShapes 是协议动词到参数形态的映射，同时充当已知动词表。
var verbShapes = map[string]shape{
	VerbRegister:          {needArg: true, needBody: true}, // 用户名 + 密码 (密码允许包含空格)
	VerbLogin:             {needArg: true, needBody: true},
	VerbCreateChatroom:    {needArg: true},
	VerbJoinChatroom:      {needArg: true},
	VerbChatroomMessage:   {needArg: true, needBody: true},
	VerbViewChatroomUsers: {needArg: true},
	VerbChatroomView:      {},
	VerbExitChatroom:      {needArg: true},
	VerbSendPrivate:       {needArg: true, needBody: true},
	VerbGetMessages:       {},
	VerbMarkRead:          {needArg: true},
	VerbExit:              {},
}

// Parse 解析一行输入。
// 解析错误都是可恢复的：调用方应答复并继续读取下一行，
// 而不是断开连接。
func Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Command{}, ErrEmpty
	}
	if !strings.HasPrefix(line, "/") {
		return Command{}, ErrNotCommand
	}

	parts := strings.SplitN(line, " ", 3)
	cmd := Command{Verb: parts[0]}
	if len(parts) > 1 {
		cmd.Arg = parts[1]
	}
	if len(parts) > 2 {
		cmd.Body = parts[2]
	}

	sh, ok := verbShapes[cmd.Verb]
	if !ok {
		return cmd, ErrUnknownVerb
	}
	if sh.needArg && cmd.Arg == "" {
		return cmd, ErrBadArguments
	}
	if sh.needBody && cmd.Body == "" {
		return cmd, ErrBadArguments
	}
	// 多余的输入同样是参数错误：不静默截断
	if !sh.needArg && cmd.Arg != "" {
		return cmd, ErrBadArguments
	}
	if !sh.needBody && cmd.Body != "" {
		return cmd, ErrBadArguments
	}
	return cmd, nil
}

// IsAuthVerb 报告一个动词是否允许在未认证状态下执行。
func IsAuthVerb(verb string) bool {
	return verb == VerbRegister || verb == VerbLogin
}
