package notify

import (
	"context"

	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/pu-ac-cn/cas-sso/pkg/casclient"
)

// LocalClient 与认证中心同进程部署的接入服务客户端
type LocalClient interface {
	OnLogout(ctx context.Context, event *casclient.LogoutEvent) int
}

// LocalForwarder 把登出事件直接转交给同进程的接入服务，不经过消息队列
type LocalForwarder struct {
	client LocalClient
}

// NewLocalForwarder 创建同进程转发器
func NewLocalForwarder(client LocalClient) *LocalForwarder {
	return &LocalForwarder{client: client}
}

// OnLogout 实现登出监听器
func (f *LocalForwarder) OnLogout(ctx context.Context, event *model.LogoutEvent) {
	f.client.OnLogout(ctx, &casclient.LogoutEvent{
		Identity: event.Identity.String(),
		TGTID:    event.TGTID,
		Services: append([]string(nil), event.Services...),
		At:       event.At,
	})
}
