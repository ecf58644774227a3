// Package selection implements the hard-eligibility pool filter and the
// exponent-weighted random selector that together turn a scored
// candidate list into a single routing choice.
package selection

import "github.com/upstreampay/payrouter/internal/domain"

// FilterAccounts drops accounts that can never serve the request:
// inactive accounts, accounts whose owning trader is inactive, and
// accounts whose remaining daily allowance is below the amount. Running
// this before scoring keeps the scoring stage away from non-positive
// headroom.
func FilterAccounts(accounts []domain.UpiAccount, amount float64) []domain.UpiAccount {
	eligible := make([]domain.UpiAccount, 0, len(accounts))
	for _, a := range accounts {
		if !a.Active || !a.TraderActive {
			continue
		}
		if a.DailyHeadroom() < amount {
			continue
		}
		eligible = append(eligible, a)
	}
	return eligible
}

// FilterTraders drops traders that can never serve the request:
// inactive traders, traders at their concurrent cap, and traders whose
// remaining daily allowance is below the amount.
func FilterTraders(traders []domain.Trader, amount float64) []domain.Trader {
	eligible := make([]domain.Trader, 0, len(traders))
	for _, t := range traders {
		if !t.Active {
			continue
		}
		if t.ConcurrentCap > 0 && t.ConcurrentActive >= t.ConcurrentCap {
			continue
		}
		if t.DailyHeadroom() < amount {
			continue
		}
		eligible = append(eligible, t)
	}
	return eligible
}
