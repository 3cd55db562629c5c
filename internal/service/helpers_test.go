package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pu-ac-cn/cas-sso/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// 创建测试用的 Redis 客户端
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// testStores 两种存储实现都需要满足同样的生命周期语义
func testStores(t *testing.T) map[string]func() store.Store {
	return map[string]func() store.Store{
		"memory": func() store.Store { return store.NewMemoryStore() },
		"redis": func() store.Store {
			client, _ := setupTestRedis(t)
			return store.NewRedisStore(client, "")
		},
	}
}

// fixture 组装完整的票据服务
type fixture struct {
	store     store.Store
	clock     *fakeClock
	factory   *TicketFactory
	validator *TicketValidator
	authority *SessionAuthority
	logout    *LogoutCoordinator
	ticketLog *MemoryTicketLog
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	return newFixtureWithFactory(t, st, NewTicketFactory(nil))
}

func newFixtureWithFactory(t *testing.T, st store.Store, factory *TicketFactory) *fixture {
	t.Helper()

	verifier, err := NewStaticCredentialVerifier("demo", "password", bcrypt.MinCost)
	require.NoError(t, err)

	clock := newFakeClock(t0)
	ticketLog := NewMemoryTicketLog(0)
	validator := NewTicketValidator(st, nil)

	return &fixture{
		store:     st,
		clock:     clock,
		factory:   factory,
		validator: validator,
		authority: NewSessionAuthority(st, factory, validator, verifier, &AuthorityConfig{
			TicketLog: ticketLog,
			Now:       clock.Now,
		}),
		logout: NewLogoutCoordinator(st, &LogoutConfig{
			TicketLog: ticketLog,
			Now:       clock.Now,
		}),
		ticketLog: ticketLog,
	}
}

// login 使用演示账号登录
func (f *fixture) login(t *testing.T, service string) *Redirect {
	t.Helper()
	r, err := f.authority.CompleteLogin(context.Background(), &LoginRequest{
		Username: "demo",
		Password: "password",
		Service:  service,
	})
	require.NoError(t, err)
	return r
}
