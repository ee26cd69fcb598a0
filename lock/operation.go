package lock

// Operation names a kind of work that must not run twice at once for the
// same subject. The set is closed: add a constant here to declare a new one.
type Operation int

const (
	ClaimBonus Operation = iota
	RedeemVoucher
	UpdateBalance
	SendNotification
	RunBatch

	operationCount
)

var operationNames = [operationCount]string{
	ClaimBonus:       "claim-bonus",
	RedeemVoucher:    "redeem-voucher",
	UpdateBalance:    "update-balance",
	SendNotification: "send-notification",
	RunBatch:         "run-batch",
}

func (op Operation) String() string {
	if !op.valid() {
		return "unknown"
	}
	return operationNames[op]
}

// Operations lists every declared operation.
func Operations() []Operation {
	out := make([]Operation, operationCount)
	for i := range out {
		out[i] = Operation(i)
	}
	return out
}

func (op Operation) valid() bool { return op >= 0 && op < operationCount }
