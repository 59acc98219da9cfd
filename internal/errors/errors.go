package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sort"
)

// Code 表示客户端内统一的错误码。
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotConnected     Code = "NOT_CONNECTED"
	CodeTimeout          Code = "TIMEOUT"
	CodeRemoteFailure    Code = "REMOTE_FAILURE"
	CodeMalformedReply   Code = "MALFORMED_REPLY"
	CodeTransportFailure Code = "TRANSPORT_FAILURE"
	CodeEncodeFailure    Code = "ENCODE_FAILURE"
	CodeSinkFailure      Code = "SINK_FAILURE"
)

// class 描述一类错误的默认消息、日志级别以及是否值得调用方重试。
type class struct {
	message   string
	level     slog.Level
	transient bool
}

// classes 按错误码归类。服务端明确拒绝的请求只记 Debug，连接类问题记 Warn，
// 协议层面的异常记 Error。客户端自身从不重试。
var classes = map[Code]class{
	CodeUnknown:          {message: "unknown error", level: slog.LevelError},
	CodeInvalidArgument:  {message: "invalid argument", level: slog.LevelDebug},
	CodeNotConnected:     {message: "realtime connection is not established", level: slog.LevelWarn, transient: true},
	CodeTimeout:          {message: "operation timed out", level: slog.LevelWarn, transient: true},
	CodeRemoteFailure:    {message: "Unknown error", level: slog.LevelDebug},
	CodeMalformedReply:   {message: "malformed reply", level: slog.LevelError},
	CodeTransportFailure: {message: "transport failure", level: slog.LevelWarn, transient: true},
	CodeEncodeFailure:    {message: "encode failure", level: slog.LevelError},
	CodeSinkFailure:      {message: "event sink failure", level: slog.LevelWarn, transient: true},
}

func classOf(code Code) class {
	if c, ok := classes[code]; ok {
		return c
	}
	return classes[CodeUnknown]
}

// Error 是客户端内统一的错误类型。
// Error() 只输出消息与原因，错误码通过 CodeOf 获取。
type Error struct {
	code   Code
	msg    string
	cause  error
	fields map[string]string
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加一个上下文字段（例如事件名），它会出现在 LogAttrs 中。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.fields == nil {
			e.fields = make(map[string]string)
		}
		e.fields[key] = value
	}
}

// New 创建错误。message 为空时使用错误码的默认消息。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = classOf(code).message
	}
	e := &Error{code: code, msg: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在 cause 外包裹统一错误类型，cause 仍可通过 errors.Is/As 访问。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 让 errors.Is 按错误码匹配，因此哨兵错误可以匹配任意消息的同类错误。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if e == nil || !ok || t == nil {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func from(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链中第一个统一错误的错误码，没有则为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := from(err); ok {
		return e.code
	}
	return CodeUnknown
}

// IsTransient 判断调用方稍后重试是否可能成功。
func IsTransient(err error) bool {
	return classOf(CodeOf(err)).transient
}

// LevelOf 返回记录该错误时应使用的日志级别。
func LevelOf(err error) slog.Level {
	return classOf(CodeOf(err)).level
}

// LogAttrs 返回错误码以及通过 WithMetadata 附加的字段，键按字典序排列。
func LogAttrs(err error) []slog.Attr {
	e, ok := from(err)
	if !ok {
		return nil
	}
	attrs := make([]slog.Attr, 0, len(e.fields)+1)
	attrs = append(attrs, slog.String("code", string(e.code)))
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, e.fields[k]))
	}
	return attrs
}
