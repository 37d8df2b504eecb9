package graphql

import "github.com/bnema/spin-accounts-cli/internal/ports"

const prizeFields = `id name exchangePrice isClaimable isExchangeable`

var documents = map[string]string{
	ports.OperationAuthWithInitData: `mutation authTelegramInitData($initData: String!, $refCode: String) {
  authTelegramInitData(initData: $initData, refCode: $refCode) { token success }
}`,
	ports.OperationMe: `query me {
  me { id starsBalance balance nextFreeSpin }
}`,
	ports.OperationStartSpin: `mutation startRouletteSpin($input: StartRouletteSpinInput!) {
  startRouletteSpin(input: $input) { success prize { ` + prizeFields + ` } }
}`,
	ports.OperationInventory: `query getRouletteInventory($limit: Int64!, $cursor: Int64!) {
  getRouletteInventory(cursor: $cursor, limit: $limit) {
    success
    prizes { userRoulettePrizeId status unlockAt prize { ` + prizeFields + ` } }
    nextCursor
    hasNextPage
  }
}`,
	ports.OperationClaimPrize: `mutation claimRoulettePrize($input: ClaimRoulettePrizeInput!) {
  claimRoulettePrize(input: $input) { success message }
}`,
	ports.OperationExchangePrize: `mutation exchangeRoulettePrizeToStarsBalance($input: ExchangeRoulettePrizeToStarsBalanceInput!) {
  exchangeRoulettePrizeToStarsBalance(input: $input) { success message }
}`,
	ports.OperationMarkURLClick: `mutation markTestSpinUrlClick($initData: String) {
  markTestSpinUrlClick(initData: $initData) { success }
}`,
	ports.OperationMarkTunnelClick: `mutation markTestSpinTonnelClick {
  markTestSpinTonnelClick { success }
}`,
	ports.OperationMarkPortalClick: `mutation markTestSpinPortalClick {
  markTestSpinPortalClick { success }
}`,
}
