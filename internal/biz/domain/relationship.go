package domain

import "time"

// Relationship represents a tracked counterparty on the trust network
type Relationship struct {
	ID        int64
	Userkey   string // canonical network userkey, upsert key
	VouchID   string
	Name      string
	Address   string
	Score     int
	Active    bool
	FirstSeen time.Time
	LastSeen  time.Time
}

// DisplayName returns the best human-readable label for the counterparty
func (r *Relationship) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return ShortAddress(r.Address)
}

// ShortAddress truncates a hex address for display (0x1234...abcd)
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
