package amqp

import (
	"encoding/json"
	"time"
)

// DatasetRefreshMessage announces that the sales dataset was replaced.
// Consumers drop any cached aggregations and re-read from storage.
type DatasetRefreshMessage struct {
	Rows      int64     `json:"rows"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDatasetRefreshMessage creates a refresh message for an import of the
// given size. Source names the file or feed the data came from.
func NewDatasetRefreshMessage(rows int64, source string) *DatasetRefreshMessage {
	return &DatasetRefreshMessage{
		Rows:      rows,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *DatasetRefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetRefreshMessageFromJSON creates a message from JSON bytes.
func DatasetRefreshMessageFromJSON(data []byte) (*DatasetRefreshMessage, error) {
	var msg DatasetRefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
