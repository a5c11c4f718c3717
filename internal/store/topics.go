package store

const (
	TopicPurchaseCreated   = "purchase.created"
	TopicPurchaseUpdated   = "purchase.updated"
	TopicPurchaseCancelled = "purchase.cancelled"
)

// Partition key = purchase_id, so all events for one purchase keep order.
func PartitionKey(purchaseID string) []byte { return []byte(purchaseID) }
