package domain

// PriceState is the pricing cell of a tradable asset.
// Created once by initialization; never deleted.
type PriceState struct {
	Asset          string   `json:"asset"`
	Authority      Identity `json:"authority"`       // signer allowed to administer the asset
	Price          uint64   `json:"price"`           // always > 0
	Demand         uint64   `json:"demand"`          // units bought since initialization
	Supply         uint64   `json:"supply"`          // units still available
	TotalLiquidity uint64   `json:"total_liquidity"` // sum of all position liquidity
	UpdatedAt      int64    `json:"updated_at"`      // unix seconds of last mutation
}
