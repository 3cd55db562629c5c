package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pu-ac-cn/cas-sso/internal/store"
)

// 生成随机服务 URL
func genService() gopter.Gen {
	return gen.OneConstOf(
		"https://app1.example.com/",
		"https://app2.example.com/callback",
		"https://mail.example/",
		"http://localhost:8080/demo/main/",
	)
}

func newPropertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	return parameters
}

// Property: 登录产生的 TGT 恰好 8 小时后过期，ST 绑定到请求的服务
func TestProperty_LoginExpiry(t *testing.T) {
	f := newFixture(t, store.NewMemoryStore())
	ctx := context.Background()
	properties := gopter.NewProperties(newPropertyParameters())

	properties.Property("TGT 有效期为 8 小时且 ST 绑定服务", prop.ForAll(
		func(service string, offset int64) bool {
			now := t0.Add(time.Duration(offset) * time.Second)
			f.clock.Set(now)

			r, err := f.authority.CompleteLogin(ctx, &LoginRequest{Username: "demo", Password: "password", Service: service})
			if err != nil {
				return false
			}
			tgt, err := f.validator.ValidateGrantingTicket(ctx, r.TGTID, now)
			if err != nil {
				return false
			}
			if !tgt.ExpiresAt.Equal(tgt.IssuedAt.Add(8*time.Hour)) || !tgt.IssuedAt.Equal(now) {
				return false
			}
			_, err = f.validator.Validate(ctx, r.Ticket, service+"#other", now)
			return errors.Is(err, ErrServiceMismatch)
		},
		genService(),
		gen.Int64Range(0, 365*24*3600),
	))

	properties.TestingRun(t)
}

// Property: 存在有效 TGT 时，多次 InitiateLogin 从不要求凭据，且每次得到不同的 ST
func TestProperty_SSODistinctTickets(t *testing.T) {
	f := newFixture(t, store.NewMemoryStore())
	ctx := context.Background()
	r := f.login(t, mailService)
	properties := gopter.NewProperties(newPropertyParameters())

	properties.Property("SSO 每次签发不同的 ST", prop.ForAll(
		func(services []string) bool {
			seen := make(map[string]bool)
			for _, svc := range services {
				out, err := f.authority.InitiateLogin(ctx, r.TGTID, svc)
				if err != nil || out.Redirect == nil || out.Challenge != nil {
					return false
				}
				if seen[out.Redirect.Ticket] {
					return false
				}
				seen[out.Redirect.Ticket] = true
			}
			return true
		},
		gen.SliceOfN(10, genService()),
	))

	properties.TestingRun(t)
}

// Property: 每张 ST 最多兑换成功一次
func TestProperty_SingleUse(t *testing.T) {
	f := newFixture(t, store.NewMemoryStore())
	ctx := context.Background()
	r := f.login(t, mailService)
	properties := gopter.NewProperties(newPropertyParameters())

	properties.Property("ST 只能兑换一次", prop.ForAll(
		func(service string, attempts int) bool {
			out, err := f.authority.InitiateLogin(ctx, r.TGTID, service)
			if err != nil || out.Redirect == nil {
				return false
			}
			successes := 0
			for i := 0; i < attempts; i++ {
				_, err := f.validator.Validate(ctx, out.Redirect.Ticket, service, t0)
				switch {
				case err == nil:
					successes++
				case !errors.Is(err, ErrAlreadyConsumed):
					return false
				}
			}
			return successes == 1
		},
		genService(),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

// Property: ST 在 expiresAt 之后校验一定失败
func TestProperty_Expiry(t *testing.T) {
	f := newFixture(t, store.NewMemoryStore())
	ctx := context.Background()
	r := f.login(t, mailService)
	properties := gopter.NewProperties(newPropertyParameters())

	properties.Property("ST 过期后校验失败", prop.ForAll(
		func(service string, delayMillis int64) bool {
			out, err := f.authority.InitiateLogin(ctx, r.TGTID, service)
			if err != nil || out.Redirect == nil {
				return false
			}
			at := t0.Add(time.Duration(delayMillis) * time.Millisecond)
			_, err = f.validator.Validate(ctx, out.Redirect.Ticket, service, at)
			if at.After(t0.Add(5 * time.Minute)) {
				return errors.Is(err, ErrExpired)
			}
			return err == nil
		},
		genService(),
		gen.Int64Range(0, 10*60*1000),
	))

	properties.TestingRun(t)
}

// Property: 登出后该 TGT 下的所有 ST 都无法兑换
func TestProperty_CascadeRevocation(t *testing.T) {
	f := newFixture(t, store.NewMemoryStore())
	ctx := context.Background()
	properties := gopter.NewProperties(newPropertyParameters())

	properties.Property("登出级联撤销所有 ST", prop.ForAll(
		func(services []string) bool {
			r, err := f.authority.CompleteLogin(ctx, &LoginRequest{Username: "demo", Password: "password", Service: mailService})
			if err != nil {
				return false
			}
			tickets := map[string]string{r.Ticket: mailService}
			for _, svc := range services {
				out, err := f.authority.InitiateLogin(ctx, r.TGTID, svc)
				if err != nil || out.Redirect == nil {
					return false
				}
				tickets[out.Redirect.Ticket] = svc
			}

			if err := f.logout.Logout(ctx, r.TGTID); err != nil {
				return false
			}
			for id, svc := range tickets {
				_, err := f.validator.Validate(ctx, id, svc, t0)
				if !errors.Is(err, ErrUnknownTicket) && !errors.Is(err, ErrParentRevoked) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genService()),
	))

	properties.TestingRun(t)
}
