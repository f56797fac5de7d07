package service

import "github.com/paygate-next/internal/constants"

// 订单状态迁移表：订单状态只能按这里声明的边迁移，
// 其余一律拒绝。FROZEN→SUCCESS 仅限人工解冻。
var tradeTransitions = map[string][]string{
	constants.TradeStateWaitPay: {
		constants.TradeStateSuccess,
		constants.TradeStateClosed,
	},
	constants.TradeStateSuccess: {
		constants.TradeStateFinished,
		constants.TradeStateFrozen,
	},
	constants.TradeStateFrozen: {
		constants.TradeStateSuccess,
	},
}

// CanTransitionTrade 判断订单状态迁移是否合法
func CanTransitionTrade(from, to string) bool {
	for _, allowed := range tradeTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalTradeState 判断是否终态
func IsTerminalTradeState(state string) bool {
	return state == constants.TradeStateClosed || state == constants.TradeStateFinished
}
