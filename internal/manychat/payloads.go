package manychat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Subscriber is the subset of the ManyChat subscriber profile the concierge
// records as a lead.
type Subscriber struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	WhatsAppPhone string `json:"whatsapp_phone,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
}

// UnmarshalJSON accepts the subscriber id as either a number or a string.
func (s *Subscriber) UnmarshalJSON(data []byte) error {
	type alias Subscriber
	aux := struct {
		ID json.RawMessage `json:"id"`
		*alias
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ID = strings.Trim(string(aux.ID), `"`)
	return nil
}

// APIError is returned when ManyChat rejects a request.
type APIError struct {
	StatusCode int             `json:"-"`
	Status     string          `json:"status,omitempty"`
	Message    string          `json:"message,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("manychat: %s (status=%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("manychat: request failed (status=%d)", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{StatusCode: status, Message: string(body)}
	}
	parsed.StatusCode = status
	return &parsed
}

// checkEnvelope turns a 2xx body reporting {"status":"error"} into an error.
func checkEnvelope(status int, body []byte) error {
	if len(body) == 0 {
		return nil
	}
	var envelope struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if envelope.Status == "" || envelope.Status == "success" {
		return nil
	}
	return decodeAPIError(status, body)
}
