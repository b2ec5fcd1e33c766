package domain

// TransferStatus tracks settlement of an outbound transfer.
type TransferStatus string

const (
	TransferPending TransferStatus = "pending"
	TransferSettled TransferStatus = "settled"
	TransferFailed  TransferStatus = "failed"
)

// Transfer is a native-currency movement reported for settlement.
// Corresponds to the transfers table in PostgreSQL.
type Transfer struct {
	TransferID string         // uuid
	From       Identity       // debited identity
	To         Identity       // credited identity
	Amount     uint64         // base units (lamports)
	Reason     string         // operation that produced it
	Status     TransferStatus // settlement state
	CreatedAt  int64          // unix seconds
}
