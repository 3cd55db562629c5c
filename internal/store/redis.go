package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/redis/go-redis/v9"
)

// Redis 中保留的时间余量：记录比逻辑过期时间多存活一段时间，
// 使得过期后的首次访问仍能返回“已过期”而不是“不存在”
const expiryGrace = time.Minute

// Redis key 后缀
const (
	consumedSuffix = ":consumed"
	childrenSuffix = ":sts"
)

// putSTScript 父 TGT 存在时才写入 ST，并登记到父 TGT 的子票据集合
// KEYS: st key, parent key, children key; ARGV: data, ttl(ms), st id, TGT 记录前缀
var putSTScript = redis.NewScript(`
local parent = redis.call('GET', KEYS[2])
if not parent then
  return 0
end
if string.sub(parent, 1, string.len(ARGV[4])) ~= ARGV[4] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[3], ARGV[3])
local ttl = redis.call('PTTL', KEYS[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[3], ttl)
end
return 1
`)

// consumeScript 比较并交换：仅当 ST 存在且未使用时设置已使用标记
// KEYS: st key, consumed key; ARGV: ST 记录前缀
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return -1
end
if string.sub(v, 1, string.len(ARGV[1])) ~= ARGV[1] then
  return -2
end
if redis.call('SETNX', KEYS[2], '1') == 0 then
  return 0
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// record Redis 中保存的票据 JSON，kind 必须是第一个字段，脚本依赖该前缀判断类型
type record struct {
	Kind model.TicketKind     `json:"kind"`
	TGT  *model.TGT           `json:"tgt,omitempty"`
	ST   *model.ServiceTicket `json:"st,omitempty"`
}

var (
	tgtRecordPrefix = `{"kind":"` + string(model.KindTGT) + `"`
	stRecordPrefix  = `{"kind":"` + string(model.KindST) + `"`
)

// RedisStore 基于 Redis 的票据存储，多个认证中心实例可共享
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 票据存储，prefix 为空时使用 "cas:"
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "cas:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) ticketKey(id string) string {
	return r.prefix + "ticket:" + id
}

func (r *RedisStore) childrenKey(tgtID string) string {
	return r.prefix + "tgt:" + tgtID + childrenSuffix
}

// Get 获取票据
func (r *RedisStore) Get(ctx context.Context, id string) (model.Ticket, error) {
	key := r.ticketKey(id)
	values, err := r.client.MGet(ctx, key, key+consumedSuffix).Result()
	if err != nil {
		return nil, fmt.Errorf("获取票据失败: %w", err)
	}

	data, ok := values[0].(string)
	if !ok {
		return nil, ErrNotFound
	}

	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("反序列化票据失败: %w", err)
	}

	switch rec.Kind {
	case model.KindTGT:
		if rec.TGT == nil {
			return nil, ErrInvalidTicket
		}
		return rec.TGT, nil
	case model.KindST:
		if rec.ST == nil {
			return nil, ErrInvalidTicket
		}
		rec.ST.Consumed = rec.ST.Consumed || values[1] != nil
		return rec.ST, nil
	default:
		return nil, ErrInvalidTicket
	}
}

// Put 保存票据
func (r *RedisStore) Put(ctx context.Context, ticket model.Ticket) error {
	if err := validate(ticket); err != nil {
		return err
	}

	rec := record{Kind: ticket.Kind()}
	var issuedAt time.Time
	switch t := ticket.(type) {
	case *model.TGT:
		rec.TGT = t
		issuedAt = t.IssuedAt
	case *model.ServiceTicket:
		rec.ST = t
		issuedAt = t.IssuedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化票据失败: %w", err)
	}

	ttl := ticket.Expiry().Sub(issuedAt)
	if ttl < 0 {
		ttl = 0
	}
	ttl += expiryGrace

	key := r.ticketKey(ticket.TicketID())
	if rec.Kind == model.KindTGT {
		if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("存储 TGT 失败: %w", err)
		}
		return nil
	}

	ok, err := putSTScript.Run(ctx, r.client,
		[]string{key, r.ticketKey(rec.ST.ParentTGTID), r.childrenKey(rec.ST.ParentTGTID)},
		string(data), ttl.Milliseconds(), rec.ST.ID, tgtRecordPrefix,
	).Int()
	if err != nil {
		return fmt.Errorf("存储 ST 失败: %w", err)
	}
	if ok == 0 {
		return ErrParentNotFound
	}
	return nil
}

// Delete 删除票据
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	t, err := r.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidTicket) {
		return err
	}

	key := r.ticketKey(id)
	if err := r.client.Del(ctx, key, key+consumedSuffix).Err(); err != nil {
		return fmt.Errorf("删除票据失败: %w", err)
	}

	if st, ok := t.(*model.ServiceTicket); ok {
		r.client.SRem(ctx, r.childrenKey(st.ParentTGTID), id)
	}
	return nil
}

// DeleteByParent 级联删除 TGT 下的所有 ST
func (r *RedisStore) DeleteByParent(ctx context.Context, tgtID string) (int, error) {
	setKey := r.childrenKey(tgtID)
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("获取子票据列表失败: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	ticketKeys := make([]string, 0, len(ids))
	otherKeys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		key := r.ticketKey(id)
		ticketKeys = append(ticketKeys, key)
		otherKeys = append(otherKeys, key+consumedSuffix)
	}
	otherKeys = append(otherKeys, setKey)

	n, err := r.client.Del(ctx, ticketKeys...).Result()
	if err != nil {
		return 0, fmt.Errorf("删除子票据失败: %w", err)
	}
	if err := r.client.Del(ctx, otherKeys...).Err(); err != nil {
		return int(n), fmt.Errorf("删除子票据索引失败: %w", err)
	}
	return int(n), nil
}

// Consume 原子地标记 ST 为已使用
func (r *RedisStore) Consume(ctx context.Context, stID string) (bool, error) {
	key := r.ticketKey(stID)
	res, err := consumeScript.Run(ctx, r.client,
		[]string{key, key + consumedSuffix},
		stRecordPrefix,
	).Int()
	if err != nil {
		return false, fmt.Errorf("标记 ST 失败: %w", err)
	}

	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	case -2:
		return false, ErrWrongKind
	default:
		return false, ErrNotFound
	}
}
