package domain

import "testing"

func TestDeliveryStateTerminal(t *testing.T) {
	tests := map[DeliveryState]bool{
		DeliveryPending:          false,
		DeliveryRelayed:          false,
		DeliveryScheduled:        false,
		DeliveryDeleted:          true,
		DeliverySoftFailed:       true,
		DeliveryRetriesExhausted: true,
		DeliveryCancelled:        true,
		DeliveryStaleSource:      true,
	}
	for state, want := range tests {
		if got := state.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestResultSetContains(t *testing.T) {
	set := ResultSet{Items: []MatchResult{
		{Title: "A", ContainerID: -100, ItemID: 1},
		{Title: "B", ContainerID: -100, ItemID: 2},
	}}
	if !set.Contains(Locator{ContainerID: -100, ItemID: 2}) {
		t.Fatal("expected listed locator to be found")
	}
	if set.Contains(Locator{ContainerID: -555, ItemID: 1}) {
		t.Fatal("locator from another channel must not match")
	}
	if (ResultSet{}).Contains(Locator{}) {
		t.Fatal("empty set contains nothing")
	}
}
