package chat

// Tier is the verification tier shown next to a message.
type Tier int

const (
	TierUnverified Tier = iota
	TierPending
	TierVerified
)

func (t Tier) String() string {
	switch t {
	case TierVerified:
		return "verified"
	case TierPending:
		return "pending"
	default:
		return "unverified"
	}
}

// Classify maps a stored message to its verification tier.
func Classify(m Message) Tier {
	switch {
	case m.HasProof() && m.ChainVerified:
		return TierVerified
	case m.HasProof():
		return TierPending
	default:
		return TierUnverified
	}
}
