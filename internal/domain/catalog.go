package domain

import (
	"fmt"
	"time"
)

// Locator identifies where a piece of content lives in the source system:
// the channel (container) and the message (item) inside it.
type Locator struct {
	ContainerID int64 `json:"containerId"`
	ItemID      int64 `json:"itemId"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%d/%d", l.ContainerID, l.ItemID)
}

type CatalogEntry struct {
	TitleRaw        string    `json:"titleRaw"`
	TitleNormalized string    `json:"titleNormalized"`
	ContainerID     int64     `json:"containerId"`
	ItemID          int64     `json:"itemId"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (e CatalogEntry) Locator() Locator {
	return Locator{ContainerID: e.ContainerID, ItemID: e.ItemID}
}

// SearchLogEntry records one user query and whether it produced anything.
type SearchLogEntry struct {
	UserID    int64     `json:"userId"`
	Query     string    `json:"query"`
	Found     bool      `json:"found"`
	CreatedAt time.Time `json:"createdAt"`
}
