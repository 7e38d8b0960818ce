package entity

// TradeOffer is the resolved payload of one send: both sides with concrete
// item instances.
type TradeOffer struct {
	SenderUserID    int64
	SenderRobux     int64
	SenderInstances []string

	TargetUserID    int64
	TargetRobux     int64
	TargetInstances []string
}

// Challenge identifies a step-up challenge raised by the platform on send.
// ID comes from the decoded metadata header, HeaderID from the challenge id
// header; continuation needs both.
type Challenge struct {
	ID       string
	HeaderID string
	Type     string
}
