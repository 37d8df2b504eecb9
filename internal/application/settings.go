package application

import (
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

// Settings are the workflow knobs a Runtime carries. cmd builds them from
// config; tests usually start from DefaultSettings.
type Settings struct {
	AppURL string
	BotRef string
	// StartPayload is sent with the raw start command when an account first
	// opens the app.
	StartPayload string

	ReserveFloor           int64
	HighValueThreshold     int64
	ExchangeThreshold      int64
	ExchangeAfterSpin      bool
	ExchangeOnBalanceCheck bool

	PaidSpinType     domain.SpinType
	PaidSpinMinStars int64

	ProfileTTL   time.Duration
	BalanceTTL   time.Duration
	InventoryTTL time.Duration

	// TransientAttempts bounds tries per remote call when failures are
	// transient; the delay doubles from TransientBackoff between tries.
	TransientAttempts int
	TransientBackoff  time.Duration

	MaxSpinAttempts         int
	SettleAfterLinkAck      time.Duration
	SettleAfterSubscription time.Duration
	SettleAfterJoin         time.Duration
	ClaimDelay              time.Duration
	ExchangeDelay           time.Duration
	InventoryPageSize       int
	BalanceBatchSize        int
	ProgressInterval        time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		ReserveFloor:            100,
		HighValueThreshold:      200,
		ExchangeThreshold:       200,
		ExchangeAfterSpin:       true,
		PaidSpinType:            domain.SpinTypePaid,
		PaidSpinMinStars:        200,
		ProfileTTL:              10 * time.Second,
		BalanceTTL:              10 * time.Second,
		InventoryTTL:            15 * time.Second,
		TransientAttempts:       3,
		TransientBackoff:        500 * time.Millisecond,
		MaxSpinAttempts:         4,
		SettleAfterLinkAck:      2 * time.Second,
		SettleAfterSubscription: 3 * time.Second,
		SettleAfterJoin:         time.Second,
		ClaimDelay:              200 * time.Millisecond,
		ExchangeDelay:           time.Second,
		InventoryPageSize:       50,
		BalanceBatchSize:        20,
		ProgressInterval:        1500 * time.Millisecond,
	}
}
