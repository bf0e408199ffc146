package service

import "github.com/shopspring/decimal"

var (
	rewardRate = decimal.RequireFromString("0.02")
	rewardStep = decimal.NewFromInt(10)
)

// ComputeReward 推荐奖励：发票金额的 2%，按 10 取整（四舍五入）
//
//	1000 -> 20, 1234 -> 20, 1250 -> 30
//
// 不做校验，非正数金额由调用方提前拒绝
func ComputeReward(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(rewardRate).Div(rewardStep).Round(0).Mul(rewardStep)
}
