package httpServices

// CaptureRequest asks the gateway to convert an authorization hold into a
// funds transfer.
type CaptureRequest struct {
	IntentRef string `json:"intent_ref"`
}

// VoidRequest asks the gateway to release an authorization hold.
type VoidRequest struct {
	IntentRef string `json:"intent_ref"`
}

// RefundRequest asks the gateway to refund part or all of a captured payment.
// Amount is in the currency's minor unit.
type RefundRequest struct {
	IntentRef string `json:"intent_ref"`
	Amount    int64  `json:"amount"`
}

// GatewayResponse is the gateway's envelope for capture/void operations.
type GatewayResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// RefundResponse carries the gateway's refund handle.
type RefundResponse struct {
	Status    string `json:"status"`
	RefundRef string `json:"refund_ref"`
	Message   string `json:"message,omitempty"`
}
