package application

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

// flexInt decodes integers the remote sends as numbers, floats or strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = flexInt(v)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

// flexString decodes identifiers that may arrive as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	if raw == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.Trim(raw, `"`))
	return nil
}

type meData struct {
	Me *struct {
		ID           flexString `json:"id"`
		StarsBalance flexInt    `json:"starsBalance"`
		Balance      flexInt    `json:"balance"`
		NextFreeSpin *string    `json:"nextFreeSpin"`
	} `json:"me"`
}

type prizeWire struct {
	ID             flexString `json:"id"`
	Name           string     `json:"name"`
	ExchangePrice  flexInt    `json:"exchangePrice"`
	IsClaimable    bool       `json:"isClaimable"`
	IsExchangeable bool       `json:"isExchangeable"`
}

func (p prizeWire) toDomain() domain.RewardItem {
	return domain.RewardItem{
		ID:            string(p.ID),
		Name:          p.Name,
		ExchangeValue: int64(p.ExchangePrice),
		Claimable:     p.IsClaimable,
		Exchangeable:  p.IsExchangeable,
	}
}

type spinData struct {
	StartRouletteSpin *struct {
		Success bool       `json:"success"`
		Prize   *prizeWire `json:"prize"`
	} `json:"startRouletteSpin"`
}

type inventoryData struct {
	GetRouletteInventory *struct {
		Success bool `json:"success"`
		Prizes  []struct {
			UserRoulettePrizeID flexInt   `json:"userRoulettePrizeId"`
			Status              string    `json:"status"`
			Name                string    `json:"name"`
			UnlockAt            *string   `json:"unlockAt"`
			Prize               prizeWire `json:"prize"`
		} `json:"prizes"`
		NextCursor  *flexInt `json:"nextCursor"`
		HasNextPage bool     `json:"hasNextPage"`
	} `json:"getRouletteInventory"`
}

type mutationResult struct {
	Success bool    `json:"success"`
	Message *string `json:"message"`
}

// parseRemoteTime returns the parsed time and whether a value was present.
// A present but unparseable value yields the zero time.
func parseRemoteTime(raw *string) (time.Time, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return time.Time{}, true
	}
	return parsed, true
}

func decodeData[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
