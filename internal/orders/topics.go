package orders

const (
	TopicTotalChanged   = "order.total_changed"
	TopicCheckedOut     = "order.checked_out"
	TopicOrderPaid      = "order.paid"
	TopicPaymentPending = "payment.pending"
)

// Partition key = order_id so all events for one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
