package domain

import "strings"

// RewardEntry is one catalog row mapping a reward key to its delivery link.
type RewardEntry struct {
	Key            string `json:"key"`
	Link           string `json:"link"`
	TwoStage       bool   `json:"two_stage"`
	SecondStepLink string `json:"second_step_link,omitempty"`
}

// NormalizeRewardKey lowercases and trims a key the way the catalog stores it.
func NormalizeRewardKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// DisplayName returns the key with its first letter upper-cased.
func (e RewardEntry) DisplayName() string {
	if e.Key == "" {
		return ""
	}
	return strings.ToUpper(e.Key[:1]) + e.Key[1:]
}

// SecondStagePhrase is the phrase a final proof must contain, e.g. "VPN KEY".
func (e RewardEntry) SecondStagePhrase() string {
	return strings.ToUpper(e.Key) + " KEY"
}
