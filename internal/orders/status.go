package orders

type Status string

const (
	StatusCart    Status = "cart"
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

var validNext = map[Status]map[Status]bool{
	StatusCart:    {StatusPending: true},
	StatusPending: {StatusPaid: true},
	StatusPaid:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)
