package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logEntry(i int, tgt string) *model.TicketLogEntry {
	return &model.TicketLogEntry{
		TicketID:    fmt.Sprintf("ST-%d", i),
		Service:     "https://app.example/",
		ParentTGTID: tgt,
		Identity:    "demo",
		IssuedAt:    t0.Add(time.Duration(i) * time.Second),
	}
}

func TestMemoryTicketLog_Recent(t *testing.T) {
	l := NewMemoryTicketLog(10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, l.Append(ctx, logEntry(i, "TGT-1")))
	}

	recent, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ST-3", recent[0].TicketID)
	assert.Equal(t, "ST-2", recent[1].TicketID)

	all, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryTicketLog_Overwrite(t *testing.T) {
	l := NewMemoryTicketLog(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Append(ctx, logEntry(i, "TGT-1")))
	}
	assert.Equal(t, 3, l.Len())

	all, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ST-5", all[0].TicketID)
	assert.Equal(t, "ST-3", all[2].TicketID)
	assert.Equal(t, uint(5), all[0].ID)
}

func TestMemoryTicketLog_ListByTGT(t *testing.T) {
	l := NewMemoryTicketLog(0)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, logEntry(1, "TGT-a")))
	require.NoError(t, l.Append(ctx, logEntry(2, "TGT-b")))
	require.NoError(t, l.Append(ctx, logEntry(3, "TGT-a")))

	entries, err := l.ListByTGT(ctx, "TGT-a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ST-1", entries[0].TicketID)
	assert.Equal(t, "ST-3", entries[1].TicketID)

	none, err := l.ListByTGT(ctx, "TGT-c")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryTicketLog_ReturnsCopies(t *testing.T) {
	l := NewMemoryTicketLog(0)
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, logEntry(1, "TGT-a")))

	got, _ := l.Recent(ctx, 1)
	got[0].Service = "https://changed.example/"

	again, _ := l.Recent(ctx, 1)
	assert.Equal(t, "https://app.example/", again[0].Service)
}

func TestMemoryTicketLog_Concurrent(t *testing.T) {
	l := NewMemoryTicketLog(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Append(ctx, logEntry(i, "TGT-1"))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, l.Len())
	all, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(100), all[0].ID)
}
