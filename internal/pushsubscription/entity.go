package pushsubscription

import "time"

// Subscription is one browser's web push endpoint for one user. A user keeps
// one subscription per device; the endpoint is unique across all of them.
type Subscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dhKey"`
	AuthKey   string    `json:"authKey"`
	CreatedAt time.Time `json:"createdAt"`
}
