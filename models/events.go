package models

// Actions carried by local domain events.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// OrderUpdateMessage is broadcast to sales subscribers on order writes.
type OrderUpdateMessage struct {
	Type       string  `json:"type"`
	UpdateType string  `json:"updateType"`
	Action     string  `json:"action,omitempty"`
	Order      *Order  `json:"order,omitempty"`
	Orders     []Order `json:"orders,omitempty"`
}

// OrderProductUpdateMessage is broadcast on order line writes.
type OrderProductUpdateMessage struct {
	Type         string        `json:"type"`
	UpdateType   string        `json:"updateType"`
	Action       string        `json:"action"`
	OrderProduct *OrderProduct `json:"orderProduct"`
}

// CustomerUpdateMessage is broadcast on customer writes.
type CustomerUpdateMessage struct {
	Type       string    `json:"type"`
	UpdateType string    `json:"updateType"`
	Action     string    `json:"action"`
	Customer   *Customer `json:"customer"`
}

// SubscriberMessage is the envelope of frames sent by sales subscribers.
type SubscriberMessage struct {
	Type string `json:"type"`
}
