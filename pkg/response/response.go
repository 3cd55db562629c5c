package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 标准响应结构
// 字段顺序：code -> msg -> data
type Response struct {
	Code int         `json:"code"` // 业务状态码，0 表示成功
	Msg  string      `json:"msg"`  // 响应消息（中文）
	Data interface{} `json:"data"` // 响应数据
}

// 业务错误码
const (
	CodeSuccess = 0 // 操作成功

	// 参数错误 10xxx
	CodeInvalidRequest = 10001 // 请求参数无效
	CodeInvalidFormat  = 10002 // 参数格式错误
	CodeMissingParam   = 10003 // 必填参数缺失

	// 认证错误 20xxx
	CodeInvalidCredentials  = 20001 // 用户名或密码错误
	CodeNotLoggedIn         = 20002 // 未登录或会话已失效
	CodeUnauthorizedService = 20003 // 服务未注册，不允许接入
	CodeForbidden           = 20008 // 无权访问该资源

	// 票据错误 30xxx
	CodeUnknownTicket   = 30001 // 票据不存在
	CodeWrongTicketType = 30002 // 票据类型不符
	CodeTicketExpired   = 30003 // 票据已过期
	CodeTicketConsumed  = 30004 // 票据已被使用
	CodeServiceMismatch = 30005 // 票据与服务不匹配
	CodeParentRevoked   = 30006 // TGT 已失效

	// 资源不存在 40xxx
	CodeServiceNotFound = 40001 // 接入服务不存在

	// 冲突错误 50xxx
	CodeServiceExists = 50001 // 服务地址已注册

	// 服务器错误 90xxx
	CodeServerError = 90001 // 服务器内部错误
	CodeUnavailable = 90002 // 服务暂时不可用
	CodeTooManyReq  = 90003 // 请求过于频繁
)

// 错误码对应的消息
var codeMessages = map[int]string{
	CodeSuccess:             "操作成功",
	CodeInvalidRequest:      "请求参数无效",
	CodeInvalidFormat:       "参数格式错误",
	CodeMissingParam:        "必填参数缺失",
	CodeInvalidCredentials:  "用户名或密码错误",
	CodeNotLoggedIn:         "未登录或会话已失效",
	CodeUnauthorizedService: "服务未注册，不允许接入",
	CodeForbidden:           "无权访问该资源",
	CodeUnknownTicket:       "票据不存在",
	CodeWrongTicketType:     "票据类型不符",
	CodeTicketExpired:       "票据已过期",
	CodeTicketConsumed:      "票据已被使用",
	CodeServiceMismatch:     "票据与服务不匹配",
	CodeParentRevoked:       "登录会话已失效",
	CodeServiceNotFound:     "接入服务不存在",
	CodeServiceExists:       "服务地址已注册",
	CodeServerError:         "服务器内部错误，请稍后重试",
	CodeUnavailable:         "服务暂时不可用",
	CodeTooManyReq:          "请求过于频繁，请稍后重试",
}

// Message 返回错误码对应的默认消息
func Message(code int) string {
	msg, ok := codeMessages[code]
	if !ok {
		return "未知错误"
	}
	return msg
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  codeMessages[CodeSuccess],
		Data: data,
	})
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int) {
	c.JSON(HTTPStatus(code), Response{
		Code: code,
		Msg:  Message(code),
		Data: nil,
	})
}

// ErrorWithMsg 错误响应（自定义消息）
func ErrorWithMsg(c *gin.Context, code int, msg string) {
	c.JSON(HTTPStatus(code), Response{
		Code: code,
		Msg:  msg,
		Data: nil,
	})
}

// HTTPStatus 业务错误码转 HTTP 状态码
func HTTPStatus(code int) int {
	switch {
	case code == CodeSuccess:
		return http.StatusOK
	case code >= 10000 && code < 20000:
		return http.StatusBadRequest
	case code >= 20000 && code < 30000:
		if code == CodeInvalidCredentials || code == CodeNotLoggedIn {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case code >= 30000 && code < 40000:
		return http.StatusBadRequest
	case code >= 40000 && code < 50000:
		return http.StatusNotFound
	case code >= 50000 && code < 60000:
		return http.StatusConflict
	case code == CodeTooManyReq:
		return http.StatusTooManyRequests
	case code == CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
