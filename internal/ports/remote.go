package ports

import (
	"context"
	"encoding/json"
)

// RemoteAPI executes one named operation against the remote application.
// Rejections are returned as *domain.RemoteError.
type RemoteAPI interface {
	Execute(ctx context.Context, operation string, variables map[string]any) (json.RawMessage, error)
}

// RemoteFactory builds the per-account API client. initData is the signed
// platform identity presented to obtain the short-lived session token.
type RemoteFactory interface {
	ForAccount(account string, initData string) RemoteAPI
}

// Operations the remote application exposes.
const (
	OperationMe               = "me"
	OperationStartSpin        = "startRouletteSpin"
	OperationInventory        = "getRouletteInventory"
	OperationClaimPrize       = "claimRoulettePrize"
	OperationExchangePrize    = "exchangeRoulettePrizeToStarsBalance"
	OperationMarkURLClick     = "markTestSpinUrlClick"
	OperationMarkTunnelClick  = "markTestSpinTonnelClick"
	OperationMarkPortalClick  = "markTestSpinPortalClick"
	OperationAuthWithInitData = "authTelegramInitData"
)
