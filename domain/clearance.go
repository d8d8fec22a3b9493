package domain

import "time"

type ClearanceStatus string

const ClearancePending ClearanceStatus = "pending"

type ClearanceApplication struct {
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	LaptopID   string          `json:"laptopId"`
	Department string          `json:"department"`
	Reason     string          `json:"reason"`
	Status     ClearanceStatus `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}
