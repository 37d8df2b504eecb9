package domain

import (
	"fmt"
	"strings"
	"time"
)

type RewardItem struct {
	ID            string
	Name          string
	ExchangeValue int64
	Claimable     bool
	Exchangeable  bool
}

func (r RewardItem) Class() RewardClass {
	return ClassifyReward(r.Name)
}

// CreditValue is the currency amount a credit item redeems for.
func (r RewardItem) CreditValue() int64 {
	if r.Class() != RewardClassCurrencyCredit {
		return 0
	}
	return LeadingAmount(r.Name)
}

func (r RewardItem) IsHighValue(threshold int64) bool {
	return r.Class() == RewardClassCollectibleGift && r.ExchangeValue > threshold
}

func (r RewardItem) Describe() string {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = "unknown prize"
	}
	if r.Class() == RewardClassCollectibleGift && r.ExchangeValue > 0 {
		return fmt.Sprintf("%s (%d⭐)", name, r.ExchangeValue)
	}
	return name
}

type InventoryStatus string

const (
	InventoryStatusNone       InventoryStatus = "NONE"
	InventoryStatusInProgress InventoryStatus = "IN_PROGRESS"
	InventoryStatusActive     InventoryStatus = "active"
	InventoryStatusClaimed    InventoryStatus = "CLAIMED"
	InventoryStatusExchanged  InventoryStatus = "EXCHANGED"
)

type InventoryItem struct {
	UserPrizeID int64
	Status      InventoryStatus
	Reward      RewardItem
	UnlockAt    time.Time
}

// CreditEligible reports whether the item is an unclaimed currency credit.
func (i InventoryItem) CreditEligible() bool {
	return i.Reward.Class() == RewardClassCurrencyCredit &&
		i.Status == InventoryStatusNone &&
		i.Reward.Claimable
}

// GiftPending reports whether the item is a collectible still held in inventory.
func (i InventoryItem) GiftPending() bool {
	if i.Reward.Class() != RewardClassCollectibleGift {
		return false
	}
	if i.Status != InventoryStatusInProgress && i.Status != InventoryStatusActive {
		return false
	}
	return i.Reward.Claimable || i.Reward.Exchangeable
}

// ExchangeEligible reports whether a pending gift is cheap enough to convert.
func (i InventoryItem) ExchangeEligible(threshold int64) bool {
	return i.GiftPending() && i.Reward.ExchangeValue <= threshold
}

type InventoryPage struct {
	Items      []InventoryItem
	NextCursor *int64
	HasMore    bool
}
