package storage

const (
	KeyTemplates         = "autoTrades"
	KeyPendingTrades     = "pendingExtensionTrades"
	KeySentTrades        = "sentTrades"
	KeySentTradeHistory  = "sentTradeHistory"
	KeyFinalizedTrades   = "finalizedExtensionTrades"
	KeyNotifiedTrades    = "notifiedTrades"
	KeyPrivacyRestricted = "privacyRestrictedUsers"
)

// AccountKey namespaces key by account. An empty account leaves key as is.
func AccountKey(key, accountID string) string {
	if accountID == "" {
		return key
	}
	return key + "_" + accountID
}
