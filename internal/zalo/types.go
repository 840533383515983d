package zalo

// SendRequest is the body of a customer-service text message.
type SendRequest struct {
	Recipient Recipient   `json:"recipient"`
	Message   TextMessage `json:"message"`
}

type Recipient struct {
	UserID string `json:"user_id"`
}

type TextMessage struct {
	Text string `json:"text"`
}

// SendResponse is the provider's envelope. Error is nil when the field was
// absent from the body.
type SendResponse struct {
	Error   *int   `json:"error"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"message_id"`
		UserID    string `json:"user_id"`
	} `json:"data"`
}
