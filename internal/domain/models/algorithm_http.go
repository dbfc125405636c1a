package models

// Requests and responses for the algorithm HTTP endpoints.

type LogsRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
}

type StatusResponse struct {
	State            AlgorithmState    `json:"state"`
	Account          *Account          `json:"account"`
	Positions        []Position        `json:"positions"`
	RebalanceHistory []RebalanceResult `json:"rebalanceHistory"`
}
