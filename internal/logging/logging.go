package logging

import (
	"encoding/json"
	"log"
	"time"
)

const defaultService = "kravings"

type Fields struct {
	Service    string `json:"service"`
	RequestID  string `json:"request_id,omitempty"`
	ConsumerID string `json:"consumer_id,omitempty"`
	VendorID   string `json:"vendor_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Log writes fields as one JSON line through the standard logger.
func Log(fields Fields) {
	if fields.Service == "" {
		fields.Service = defaultService
	}
	fields.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(fields)
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Service, err.Error())
		return
	}
	log.Print(string(data))
}

// Err returns err's message, or "" for nil.
func Err(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
