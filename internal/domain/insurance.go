package domain

// InsurancePool is the shared backstop fund of an asset.
type InsurancePool struct {
	Asset      string   `json:"asset"`
	Authority  Identity `json:"authority"`
	TotalFunds uint64   `json:"total_funds"`
	UpdatedAt  int64    `json:"updated_at"`
}

// UserProfile links a user to the referrer that introduced them.
type UserProfile struct {
	Asset     string    `json:"asset"`
	User      Identity  `json:"user"`
	Referrer  *Identity `json:"referrer,omitempty"` // nil until registered
	UpdatedAt int64     `json:"updated_at"`
}
