package domain

import (
	"strconv"
	"strings"
	"unicode"
)

type RewardClass string

const (
	RewardClassCurrencyCredit  RewardClass = "currency_credit"
	RewardClassCollectibleGift RewardClass = "collectible_gift"
	RewardClassStakeToken      RewardClass = "stake_token"
)

func (c RewardClass) Label() string {
	switch c {
	case RewardClassCurrencyCredit:
		return "Stars"
	case RewardClassStakeToken:
		return "Viruses"
	case RewardClassCollectibleGift:
		return "Gift"
	default:
		return string(c)
	}
}

// ClassifyReward inspects the prize name. Credits are named like "7 Stars",
// stake tokens like "50 Viruses"; everything else is a collectible gift.
func ClassifyReward(name string) RewardClass {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.Contains(lower, "star"):
		return RewardClassCurrencyCredit
	case strings.Contains(lower, "virus"):
		return RewardClassStakeToken
	default:
		return RewardClassCollectibleGift
	}
}

// LeadingAmount returns the first integer found in name, or 0.
func LeadingAmount(name string) int64 {
	start := strings.IndexFunc(name, unicode.IsDigit)
	if start < 0 {
		return 0
	}

	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}

	value, err := strconv.ParseInt(name[start:end], 10, 64)
	if err != nil {
		return 0
	}

	return value
}
