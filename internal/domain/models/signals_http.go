package models

import "time"

// Request payloads for the HTTP surface. Bound and validated by pkg/http.

type StatementRequest struct {
	ID        string    `json:"id"`
	Source    string    `json:"source" validate:"max=128"`
	Text      string    `json:"text" validate:"required,max=5000"`
	Timestamp time.Time `json:"timestamp"`
	Weight    *float64  `json:"weight" validate:"omitempty,gte=0,lte=1"`
}

func (r StatementRequest) Statement() StatementInput {
	return StatementInput{ID: r.ID, Source: r.Source, Text: r.Text, Timestamp: r.Timestamp, Weight: r.Weight}
}

type DecideRequest struct {
	Items []StatementRequest `json:"items" validate:"required,min=1,max=200,dive"`
}

func (r DecideRequest) Statements() []StatementInput {
	out := make([]StatementInput, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Statement()
	}
	return out
}

type HistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type SourceWeightRequest struct {
	Source string `query:"source" json:"source" validate:"required"`
}
