package rules

import (
	"fmt"
	"time"

	"warden/internal/config"
)

// AccountMultiplier returns the risk multiplier for young or freshly joined
// accounts. It amplifies other signals rather than firing on its own, so the
// decision engine applies it after summing evaluator confidences. A zero
// creation or join time means the platform did not supply it and that check
// is skipped.
func AccountMultiplier(ev Event, pol config.GuildPolicy) (float64, string) {
	if !pol.Account.Enabled || pol.Account.Multiplier <= 1.0 {
		return 1.0, ""
	}

	if !ev.AccountCreated.IsZero() {
		age := ev.ReceivedAt.Sub(ev.AccountCreated)
		if age < pol.Account.MaxAge {
			return pol.Account.Multiplier, fmt.Sprintf("account age %s below %s", age.Round(time.Second), pol.Account.MaxAge)
		}
	}

	if !ev.JoinedAt.IsZero() {
		gap := ev.ReceivedAt.Sub(ev.JoinedAt)
		if gap < pol.Account.MaxJoinGap {
			return pol.Account.Multiplier, fmt.Sprintf("joined %s ago", gap.Round(time.Second))
		}
	}

	return 1.0, ""
}
