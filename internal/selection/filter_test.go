package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upstreampay/payrouter/internal/domain"
)

func TestFilterAccounts(t *testing.T) {
	accounts := []domain.UpiAccount{
		{ID: "ok", Active: true, TraderActive: true, DailyUsed: 1000, DailyCap: 50000},
		{ID: "inactive", Active: false, TraderActive: true, DailyCap: 50000},
		{ID: "owner-off", Active: true, TraderActive: false, DailyCap: 50000},
		{ID: "no-headroom", Active: true, TraderActive: true, DailyUsed: 49500, DailyCap: 50000},
		{ID: "exact-headroom", Active: true, TraderActive: true, DailyUsed: 49000, DailyCap: 50000},
	}

	got := FilterAccounts(accounts, 1000)
	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"ok", "exact-headroom"}, ids)
}

func TestFilterTraders(t *testing.T) {
	traders := []domain.Trader{
		{ID: "ok", Active: true, ConcurrentActive: 1, ConcurrentCap: 5, DailyCap: 50000},
		{ID: "inactive", Active: false, DailyCap: 50000},
		{ID: "at-cap", Active: true, ConcurrentActive: 5, ConcurrentCap: 5, DailyCap: 50000},
		{ID: "uncapped", Active: true, ConcurrentActive: 99, ConcurrentCap: 0, DailyCap: 50000},
		{ID: "no-headroom", Active: true, ConcurrentCap: 5, DailyUsed: 49900, DailyCap: 50000},
	}

	got := FilterTraders(traders, 1000)
	ids := make([]string, 0, len(got))
	for _, tr := range got {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"ok", "uncapped"}, ids)
}
