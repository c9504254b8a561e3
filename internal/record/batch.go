package record

// Batch is the ingestion request body: an ordered set of records from
// one drain cycle. The backend dedupes on record_id, so re-sending a
// batch whose acknowledgment was lost is safe.
type Batch struct {
	BatchID string    `json:"batch_id"`
	Records []*Record `json:"records"`
}

// Per-record ingestion statuses.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
	StatusRejected  = "rejected"
)

// BatchResult is the backend's verdict for one record.
type BatchResult struct {
	RecordID string `json:"record_id"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// BatchResponse is the ingestion response body.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
}
