// Package service 票据生命周期业务逻辑
package service

import "errors"

// 票据相关错误，调用方使用 errors.Is 判断
var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrUnknownTicket      = errors.New("票据不存在")
	ErrWrongTicketType    = errors.New("票据类型不符")
	ErrExpired            = errors.New("票据已过期")
	ErrAlreadyConsumed    = errors.New("Service Ticket 已被使用")
	ErrServiceMismatch    = errors.New("Service Ticket 与服务地址不匹配")
	ErrParentRevoked      = errors.New("TGT 已失效")
	ErrMissingService     = errors.New("服务地址不能为空")
)

// ResultLabel 把校验错误归类为指标标签
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnknownTicket):
		return "unknown_ticket"
	case errors.Is(err, ErrWrongTicketType):
		return "wrong_type"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAlreadyConsumed):
		return "already_consumed"
	case errors.Is(err, ErrServiceMismatch):
		return "service_mismatch"
	case errors.Is(err, ErrParentRevoked):
		return "parent_revoked"
	default:
		return "error"
	}
}
