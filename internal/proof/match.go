package proof

import (
	"strings"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

// MatchReward finds the catalog entry named in text. Keys are matched as
// case-insensitive substrings; the longest matching key wins and equal
// lengths fall back to catalog order.
func MatchReward(text string, entries []domain.RewardEntry) (domain.RewardEntry, bool) {
	lowered := strings.ToLower(text)
	best := -1
	for i, entry := range entries {
		key := domain.NormalizeRewardKey(entry.Key)
		if key == "" || !strings.Contains(lowered, key) {
			continue
		}
		if best < 0 || len(key) > len(domain.NormalizeRewardKey(entries[best].Key)) {
			best = i
		}
	}
	if best < 0 {
		return domain.RewardEntry{}, false
	}
	return entries[best], true
}
