package fanout

import "fmt"

// Topic name constants and constructors.
const (
	TopicPulse     = "pulse"
	TopicDashboard = "dashboard"
)

func TopicToken(address string) string { return fmt.Sprintf("token:%s", address) }

func TopicOHLCV(base, quote string, tf string) string {
	return fmt.Sprintf("ohlcv:%s:%s:%s", base, quote, tf)
}

func TopicTrades(base, quote string) string {
	return fmt.Sprintf("trades:%s:%s", base, quote)
}

// Event type name constants for the pulse lifecycle and OHLCV updates.
const (
	EventNewPair         = "pulse:new-pair"
	EventTokenUpdate     = "pulse:token-update"
	EventGraduating      = "pulse:graduating"
	EventMigrated        = "pulse:migrated"
	EventOHLCVUpdate     = "ohlcv:update"
	EventOHLCVClosed     = "ohlcv:closed"
	EventPriceUpdate     = "price:update"
	EventTrade           = "trade"
	EventDashboardPrices = "dashboard:prices"
)
