package types

import "taxquery-backend/internal/conversation"

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	SessionID string               `json:"sessionId"`
	Intent    string               `json:"intent"`
	Entries   []conversation.Entry `json:"entries"`
	Busy      bool                 `json:"busy"`
}

type HistoryResponse struct {
	SessionID string               `json:"sessionId"`
	History   []conversation.Entry `json:"history"`
	Busy      bool                 `json:"busy"`
	LastQuery string               `json:"lastQuery,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Sessions int    `json:"sessions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
