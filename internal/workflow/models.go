package workflow

import "time"

// RideInput is the start payload of a ride session workflow. CustomerID is
// part of the payload shape but is resolved by the workflow itself.
type RideInput struct {
	EmailAddress string `json:"emailAddress"`
	CustomerID   string `json:"customerID,omitempty"`
	ScooterID    string `json:"scooterID"`
}

// RideDetails is the result of the getRideDetails query: the start input
// echoed back plus the workflow's running status.
type RideDetails struct {
	EmailAddress string     `json:"emailAddress"`
	CustomerID   string     `json:"customerId,omitempty"`
	ScooterID    string     `json:"scooterID"`
	Status       RideStatus `json:"status"`
}

type RideStatus struct {
	Phase       string         `json:"phase"` // INITIALIZING | ACTIVE | ENDED | FAILED
	StartedAt   time.Time      `json:"startedAt"`
	LastMeterAt time.Time      `json:"lastMeterAt"`
	DistanceFt  int            `json:"distanceFt"`
	Tokens      TokenBreakdown `json:"tokens"`
	Pricing     Pricing        `json:"pricing"`
	LastError   string         `json:"lastError,omitempty"`
}

type TokenBreakdown struct {
	Unlock   int `json:"unlock"`
	Time     int `json:"time"`
	Distance int `json:"distance"`
	Total    int `json:"total"`
}

type Pricing struct {
	PricePerThousand float64 `json:"pricePerThousand"`
	Currency         string  `json:"currency"`
}
