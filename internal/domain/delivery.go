package domain

import "time"

type DeliveryJob struct {
	Destination int64
	ContainerID int64
	ItemID      int64
	Protect     bool
	TTL         time.Duration
}

func (j DeliveryJob) Locator() Locator {
	return Locator{ContainerID: j.ContainerID, ItemID: j.ItemID}
}

// DeliveryState is the lifecycle position of one delivery and its
// self-destruct follow-up.
type DeliveryState string

const (
	DeliveryPending          DeliveryState = "pending"
	DeliveryRelayed          DeliveryState = "relayed"
	DeliveryScheduled        DeliveryState = "scheduled"
	DeliveryDeleted          DeliveryState = "deleted"
	DeliverySoftFailed       DeliveryState = "soft_failed"
	DeliveryRetriesExhausted DeliveryState = "retries_exhausted"
	DeliveryCancelled        DeliveryState = "cancelled"
	DeliveryStaleSource      DeliveryState = "stale_source"
)

func (s DeliveryState) Terminal() bool {
	switch s {
	case DeliveryDeleted, DeliverySoftFailed, DeliveryRetriesExhausted, DeliveryCancelled, DeliveryStaleSource:
		return true
	default:
		return false
	}
}
