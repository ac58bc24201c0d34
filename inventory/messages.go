package inventory

import (
	"encoding/json"

	"sales-service/models"
)

// Kind tags a parsed inbound frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindGlobal
	KindSingle
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindGlobal:
		return "global"
	case KindSingle:
		return "single"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Message is one inbound frame. Exactly one of Products, Product or Status
// is meaningful, according to Kind.
type Message struct {
	Kind     Kind
	Products []models.ProductPayload
	Product  *models.ProductPayload
	Status   *models.StockStatusMessage
}

type productUpdateProbe struct {
	Type           string                   `json:"type"`
	UpdateType     string                   `json:"updateType"`
	Products       *[]models.ProductPayload `json:"products"`
	UpdatedProduct *models.ProductPayload   `json:"updatedProduct"`
}

// ParseMessage tries the shapes richest first: productUpdate/global,
// productUpdate/single, then the status fallback. Anything else is
// KindUnknown; it never fails.
func ParseMessage(raw []byte) Message {
	var probe productUpdateProbe
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Type == models.MessageTypeProductUpdate {
		switch {
		case probe.UpdateType == models.UpdateTypeGlobal && probe.Products != nil:
			return Message{Kind: KindGlobal, Products: *probe.Products}
		case probe.UpdateType == models.UpdateTypeSingle && probe.UpdatedProduct != nil:
			return Message{Kind: KindSingle, Product: probe.UpdatedProduct}
		}
		return Message{Kind: KindUnknown}
	}

	var status models.StockStatusMessage
	if err := json.Unmarshal(raw, &status); err != nil {
		return Message{Kind: KindUnknown}
	}
	if _, hasStock := status.Stock(); status.Status == "" && !(status.ProductID > 0 && hasStock) {
		return Message{Kind: KindUnknown}
	}
	return Message{Kind: KindStatus, Status: &status}
}
