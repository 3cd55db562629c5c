package store

import (
	"context"
	"sync"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/model"
)

// MemoryStore 进程内票据存储
type MemoryStore struct {
	mutex    sync.Mutex
	tickets  map[string]model.Ticket
	children map[string]map[string]struct{} // TGT ID -> ST ID 集合
}

// NewMemoryStore 创建进程内票据存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]model.Ticket),
		children: make(map[string]map[string]struct{}),
	}
}

// Get 获取票据
func (m *MemoryStore) Get(_ context.Context, id string) (model.Ticket, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

// Put 保存票据
func (m *MemoryStore) Put(_ context.Context, ticket model.Ticket) error {
	if err := validate(ticket); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if st, ok := ticket.(*model.ServiceTicket); ok {
		parent, exists := m.tickets[st.ParentTGTID]
		if !exists || parent.Kind() != model.KindTGT {
			return ErrParentNotFound
		}
		ids := m.children[st.ParentTGTID]
		if ids == nil {
			ids = make(map[string]struct{})
			m.children[st.ParentTGTID] = ids
		}
		ids[st.ID] = struct{}{}
	}

	m.tickets[ticket.TicketID()] = clone(ticket)
	return nil
}

// Delete 删除票据
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.deleteWithLocked(id)
	return nil
}

// DeleteByParent 级联删除 TGT 下的所有 ST
func (m *MemoryStore) DeleteByParent(_ context.Context, tgtID string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	count := 0
	for id := range m.children[tgtID] {
		if _, ok := m.tickets[id]; ok {
			delete(m.tickets, id)
			count++
		}
	}
	delete(m.children, tgtID)
	return count, nil
}

// Consume 原子地标记 ST 为已使用
func (m *MemoryStore) Consume(_ context.Context, stID string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, ok := m.tickets[stID]
	if !ok {
		return false, ErrNotFound
	}
	st, ok := t.(*model.ServiceTicket)
	if !ok {
		return false, ErrWrongKind
	}
	if st.Consumed {
		return false, nil
	}
	st.Consumed = true
	return true, nil
}

// Sweep 删除在 now 时刻已过期的票据
func (m *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var expiredList []string
	for id, t := range m.tickets {
		if now.After(t.Expiry()) {
			expiredList = append(expiredList, id)
		}
	}

	for _, id := range expiredList {
		m.deleteWithLocked(id)
	}
	return len(expiredList), nil
}

// Len 当前保存的票据数量
func (m *MemoryStore) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tickets)
}

func (m *MemoryStore) deleteWithLocked(id string) {
	t, ok := m.tickets[id]
	if !ok {
		return
	}
	delete(m.tickets, id)

	if st, ok := t.(*model.ServiceTicket); ok {
		if ids := m.children[st.ParentTGTID]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(m.children, st.ParentTGTID)
			}
		}
	}
}
