// Package schema defines the canonical order, quote, and status types shared
// across the bridge core.
package schema

import (
	"strings"
	"time"
)

// RemoteStatus enumerates lifecycle states reported by the exchange API.
type RemoteStatus string

const (
	// RemoteStatusNew indicates the deposit has not been seen yet.
	RemoteStatusNew RemoteStatus = "NEW"
	// RemoteStatusPending indicates the deposit is awaiting confirmations.
	RemoteStatusPending RemoteStatus = "PENDING"
	// RemoteStatusExchange indicates the exchange leg is in progress.
	RemoteStatusExchange RemoteStatus = "EXCHANGE"
	// RemoteStatusWithdraw indicates the outgoing transfer is in progress.
	RemoteStatusWithdraw RemoteStatus = "WITHDRAW"
	// RemoteStatusDone indicates the order completed.
	RemoteStatusDone RemoteStatus = "DONE"
	// RemoteStatusExpired indicates the deposit window elapsed.
	RemoteStatusExpired RemoteStatus = "EXPIRED"
	// RemoteStatusEmergency indicates the order needs manual resolution.
	RemoteStatusEmergency RemoteStatus = "EMERGENCY"
)

// OrderStatus enumerates the internal status vocabulary. Values are the
// canonical lowercase identifiers consumed by dashboards and stored records.
type OrderStatus string

const (
	// StatusAwaitingDeposit waits for the user to send funds.
	StatusAwaitingDeposit OrderStatus = "awaiting-deposit"
	// StatusConfirming waits for network confirmation of the deposit.
	StatusConfirming OrderStatus = "awaiting-confirmation"
	// StatusExchanging covers the backend exchange leg.
	StatusExchanging OrderStatus = "exchanging"
	// StatusSending covers the outgoing withdrawal leg.
	StatusSending OrderStatus = "sending"
	// StatusCompleted is the terminal success state.
	StatusCompleted OrderStatus = "completed"
	// StatusExpired is the terminal deposit-window-elapsed state.
	StatusExpired OrderStatus = "expired"
	// StatusEmergency is the terminal failure state requiring manual action.
	StatusEmergency OrderStatus = "emergency"
)

// MapRemoteStatus translates the exchange vocabulary into the internal one.
// Unrecognized remote statuses map to the earliest step so a mid-rollout
// vocabulary addition never strands an order in a bogus terminal state.
func MapRemoteStatus(remote RemoteStatus) OrderStatus {
	switch RemoteStatus(strings.ToUpper(strings.TrimSpace(string(remote)))) {
	case RemoteStatusNew:
		return StatusAwaitingDeposit
	case RemoteStatusPending:
		return StatusConfirming
	case RemoteStatusExchange:
		return StatusExchanging
	case RemoteStatusWithdraw:
		return StatusSending
	case RemoteStatusDone:
		return StatusCompleted
	case RemoteStatusExpired:
		return StatusExpired
	case RemoteStatusEmergency:
		return StatusEmergency
	default:
		return StatusAwaitingDeposit
	}
}

// Terminal reports whether no further remote transition is expected.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusEmergency:
		return true
	default:
		return false
	}
}

// Remote returns the exchange-side status string corresponding to s.
func (s OrderStatus) Remote() RemoteStatus {
	switch s {
	case StatusAwaitingDeposit:
		return RemoteStatusNew
	case StatusConfirming:
		return RemoteStatusPending
	case StatusExchanging:
		return RemoteStatusExchange
	case StatusSending:
		return RemoteStatusWithdraw
	case StatusCompleted:
		return RemoteStatusDone
	case StatusExpired:
		return RemoteStatusExpired
	case StatusEmergency:
		return RemoteStatusEmergency
	default:
		return RemoteStatusNew
	}
}

const (
	// PollIntervalShort drives statuses where user action or a network
	// confirmation is expected imminently.
	PollIntervalShort = 10 * time.Second
	// PollIntervalMedium drives backend-side processing statuses.
	PollIntervalMedium = 20 * time.Second
	// PollIntervalStopped marks statuses that no longer warrant polling.
	PollIntervalStopped = time.Duration(0)
)

// PollInterval returns the status-dependent delay before the next status
// check. A zero duration means polling should stop.
func (s OrderStatus) PollInterval() time.Duration {
	switch s {
	case StatusAwaitingDeposit, StatusConfirming:
		return PollIntervalShort
	case StatusExchanging, StatusSending:
		return PollIntervalMedium
	case StatusCompleted, StatusExpired, StatusEmergency:
		return PollIntervalStopped
	default:
		return PollIntervalShort
	}
}
