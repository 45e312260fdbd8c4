package model

import (
	"errors"
	"time"
)

// PatentRecord holds the fields extracted from one register document
type PatentRecord struct {
	Number               string   `json:"number"`
	FilingDate           string   `json:"date"`
	CitedDocuments       []string `json:"quotes"`
	Authors              []string `json:"authors"`
	PatentOwner          string   `json:"patent_owner"`
	IPCClasses           []string `json:"mpk"`
	CPCClasses           []string `json:"spk"`
	Country              string   `json:"country"`
	DocumentType         string   `json:"type_of_document"`
	Title                string   `json:"title"`
	Abstract             string   `json:"abstract"`
	Claims               string   `json:"patent_claims"`
	Description          string   `json:"patent_description"`
	SourcesOfInformation []string `json:"source_of_information"`
}

// Status classifies how a document resolved
type Status string

const (
	StatusSuccess  Status = "success"
	StatusNotFound Status = "not_found" // Register explicitly reports no such document
	StatusFailed   Status = "failed"
)

// Failure classes carried by failed outcomes. Use errors.Is on Outcome.Err.
var (
	ErrTransport = errors.New("transport failure")
	ErrStructure = errors.New("structural extraction failure")
	ErrTimeout   = errors.New("job timed out")
	ErrAbandoned = errors.New("job abandoned")
)

// Outcome is the result of resolving one identifier. Number is always set,
// so outcomes can be correlated without relying on completion order.
type Outcome struct {
	Number  string        `json:"number"`
	Status  Status        `json:"status"`
	Record  *PatentRecord `json:"record,omitempty"`
	Err     error         `json:"-"`
	Elapsed time.Duration `json:"elapsed_ns,omitempty"`
}

// Success wraps a record extracted for the requested number
func Success(number string, rec *PatentRecord) Outcome {
	return Outcome{Number: number, Status: StatusSuccess, Record: rec}
}

// NotFound reports a document the register says does not exist
func NotFound(number string) Outcome {
	return Outcome{Number: number, Status: StatusNotFound}
}

// Failed reports a document that could not be fetched or extracted
func Failed(number string, err error) Outcome {
	return Outcome{Number: number, Status: StatusFailed, Err: err}
}

// OK reports whether the outcome carries a record
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess && o.Record != nil
}

// Reason returns a short failure class for logs and metrics
func (o Outcome) Reason() string {
	switch {
	case o.Status != StatusFailed:
		return ""
	case errors.Is(o.Err, ErrTimeout):
		return "timeout"
	case errors.Is(o.Err, ErrAbandoned):
		return "abandoned"
	case errors.Is(o.Err, ErrTransport):
		return "transport"
	case errors.Is(o.Err, ErrStructure):
		return "structure"
	default:
		return "other"
	}
}
