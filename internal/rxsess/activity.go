package rxsess

import "time"

// ActivityTimer tracks per-remote-sender data-inactivity, expiring at
// max(activityMin, 2*txRobustFactor*grtt) and repeating rxRobustFactor
// times (spec §4.6.6).
type ActivityTimer struct {
	ActivityMin    time.Duration
	TxRobustFactor int
	RxRobustFactor int

	grtt       time.Duration
	expiries   int
	lastActive time.Time
}

// NewActivityTimer starts armed from now.
func NewActivityTimer(activityMin time.Duration, txRobust, rxRobust int, now time.Time) *ActivityTimer {
	return &ActivityTimer{ActivityMin: activityMin, TxRobustFactor: txRobust, RxRobustFactor: rxRobust, lastActive: now}
}

// Interval returns the current expiry interval given the latest grtt
// estimate.
func (a *ActivityTimer) Interval(grtt time.Duration) time.Duration {
	a.grtt = grtt
	iv := time.Duration(2*a.TxRobustFactor) * grtt
	if iv < a.ActivityMin {
		iv = a.ActivityMin
	}
	return iv
}

// OnData resets the timer on observed data traffic.
func (a *ActivityTimer) OnData(now time.Time) {
	a.lastActive = now
	a.expiries = 0
}

// Expire fires the timer, returning (repairCheck, inactive):
// repairCheck is true on the first expiry (re-issue a comprehensive
// repair check); inactive is true once rxRobustFactor expiries have
// elapsed with no data (notify REMOTE_SENDER_INACTIVE).
func (a *ActivityTimer) Expire() (repairCheck, inactive bool) {
	a.expiries++
	if a.expiries == 1 {
		return true, false
	}
	if a.expiries >= a.RxRobustFactor {
		return false, true
	}
	return false, false
}
