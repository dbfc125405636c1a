package models

import "time"

type Account struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Equity         float64 `json:"equity"`
	Cash           float64 `json:"cash"`
	BuyingPower    float64 `json:"buyingPower"`
	PortfolioValue float64 `json:"portfolioValue"`
}

type Position struct {
	Symbol         string  `json:"symbol"`
	Qty            float64 `json:"qty"`
	Side           string  `json:"side"`
	MarketValue    float64 `json:"marketValue"`
	CostBasis      float64 `json:"costBasis"`
	CurrentPrice   float64 `json:"currentPrice"`
	UnrealizedPL   float64 `json:"unrealizedPl"`
	UnrealizedPLPC float64 `json:"unrealizedPlpc"`
}

type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"isOpen"`
	NextOpen  time.Time `json:"nextOpen"`
	NextClose time.Time `json:"nextClose"`
}
