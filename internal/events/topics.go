package events

const (
	TopicOrderPlaced        = "plant.order.placed"
	TopicOrderCancelled     = "plant.order.cancelled"
	TopicOrderStatusChanged = "plant.order.status_changed"
	TopicStockAdjusted      = "plant.stock.adjusted"
)

// PartitionKey keeps every event of one aggregate on the same partition.
func PartitionKey(id string) []byte { return []byte(id) }
