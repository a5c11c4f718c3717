package redisx

import "time"

const (
	// Assembled purchase cache: purchase:{purchase_id} -> JSON document
	KeyPurchase = "purchase:%s"
)

var (
	TTLPurchaseCache = 5 * time.Minute
)
