package idhash

import (
	"crypto/sha256"
	"fmt"
)

// ComputeOracleDigest computes the SHA256 digest an oracle publisher signs for a price update.
// Formula: SHA256(feed_id|price|expo|conf|publish_time)
func ComputeOracleDigest(feedID string, price int64, expo int32, conf uint64, publishTime int64) []byte {
	data := fmt.Sprintf("%s|%d|%d|%d|%d", feedID, price, expo, conf, publishTime)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}
