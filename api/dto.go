/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry go-playground/validator tags; handlers run the
  shared validator before touching the engine. Business rules (quota,
  promotion windows, state transitions) are validated by the engine, not
  here.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/gatehall/ticketing-engine/ticketing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateAccountRequest registers a principal record.
type CreateAccountRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Role string `json:"role" validate:"required,oneof=customer organizer"`
}

// TierSpecRequest describes one tier at event-creation time.
type TierSpecRequest struct {
	Name  string `json:"name" validate:"required"`
	Price int64  `json:"price" validate:"gte=0"`
	Quota int    `json:"quota" validate:"gte=0"`
}

// CreateEventRequest creates an event with its tiers.
type CreateEventRequest struct {
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Location    string            `json:"location"`
	StartDate   time.Time         `json:"start_date" validate:"required"`
	EndDate     time.Time         `json:"end_date" validate:"required"`
	Tiers       []TierSpecRequest `json:"tiers" validate:"required,min=1,dive"`
}

// AddTiersRequest appends tiers to an existing event.
type AddTiersRequest struct {
	Tiers []TierSpecRequest `json:"tiers" validate:"required,min=1,dive"`
}

// CreatePromotionRequest opens a promotion window on an event.
type CreatePromotionRequest struct {
	Title     string    `json:"title" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// CheckoutRequest reserves tickets on a tier.
type CheckoutRequest struct {
	TierID    string `json:"tier_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	UsePoints bool   `json:"use_points"`
}

// ConfirmRequest is the organizer's decision on a transaction.
type ConfirmRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

// GrantPointsRequest awards points to an account.
type GrantPointsRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Points    int64  `json:"points"`
	CreatedAt string `json:"created_at,omitempty"`
}

// TierDTO represents a ticket tier.
type TierDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Quota int    `json:"quota"`
}

// PromotionDTO represents a promotion window.
type PromotionDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// EventDTO represents an event with its tiers and active promotions.
type EventDTO struct {
	ID             string         `json:"id"`
	OrganizerID    string         `json:"organizer_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category,omitempty"`
	Location       string         `json:"location,omitempty"`
	StartDate      string         `json:"start_date"`
	EndDate        string         `json:"end_date"`
	NominalPrice   int64          `json:"nominal_price"`
	AvailableSeats int            `json:"available_seats"`
	Tiers          []TierDTO      `json:"tiers,omitempty"`
	Promotions     []PromotionDTO `json:"active_promotions,omitempty"`
}

// TransactionDTO represents a transaction, with its points usage if any.
type TransactionDTO struct {
	ID           string `json:"id"`
	BuyerID      string `json:"buyer_id"`
	EventID      string `json:"event_id"`
	TierID       string `json:"tier_id"`
	Quantity     int    `json:"quantity"`
	TotalPrice   int64  `json:"total_price"`
	Status       string `json:"status"`
	PaymentProof string `json:"payment_proof,omitempty"`
	PointsUsed   int64  `json:"points_used,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// CheckoutResponseDTO reports what a checkout committed.
type CheckoutResponseDTO struct {
	TransactionID string `json:"transaction_id"`
	FinalPrice    int64  `json:"final_price"`
	PointsUsed    int64  `json:"points_used"`
	Status        string `json:"status"`
}

// PointGrantDTO represents one point award.
type PointGrantDTO struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
	ExpiresAt     string `json:"expires_at"`
	Active        bool   `json:"active"`
	TransactionID string `json:"transaction_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// PointsSummaryDTO is an account's balance with its grant history.
type PointsSummaryDTO struct {
	AccountID string          `json:"account_id"`
	Balance   int64           `json:"balance"`
	Grants    []PointGrantDTO `json:"grants"`
}

// EventReportDTO summarizes one event's sales on the dashboard.
type EventReportDTO struct {
	EventID       string         `json:"event_id"`
	EventName     string         `json:"event_name"`
	CountByStatus map[string]int `json:"count_by_status"`
	TicketsSold   int            `json:"tickets_sold"`
	GrossRevenue  int64          `json:"gross_revenue"`
	PointsOffset  int64          `json:"points_offset"`
}

// DashboardDTO is the organizer-wide revenue rollup.
type DashboardDTO struct {
	OrganizerID       string           `json:"organizer_id"`
	Events            []EventReportDTO `json:"events"`
	GrossRevenue      int64            `json:"gross_revenue"`
	AverageOrderValue string           `json:"average_order_value"`
}

// SweepResultDTO reports what a manually triggered sweep did.
type SweepResultDTO struct {
	Expired       int `json:"expired"`
	Canceled      int `json:"canceled"`
	GrantsExpired int `json:"grants_expired"`
	Failed        int `json:"failed"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DOMAIN -> DTO CONVERSIONS
// =============================================================================

func toAccountDTO(a ticketing.Account) AccountDTO {
	return AccountDTO{
		ID:        string(a.ID),
		Name:      a.Name,
		Role:      string(a.Role),
		Points:    int64(a.Points),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func toEventDTO(d ticketing.EventDetail) EventDTO {
	dto := EventDTO{
		ID:             string(d.Event.ID),
		OrganizerID:    string(d.Event.OrganizerID),
		Name:           d.Event.Name,
		Description:    d.Event.Description,
		Category:       d.Event.Category,
		Location:       d.Event.Location,
		StartDate:      d.Event.StartDate.Format(time.RFC3339),
		EndDate:        d.Event.EndDate.Format(time.RFC3339),
		NominalPrice:   int64(d.Event.NominalPrice),
		AvailableSeats: d.Event.AvailableSeats,
	}
	for _, t := range d.Tiers {
		dto.Tiers = append(dto.Tiers, TierDTO{
			ID:    string(t.ID),
			Name:  t.Name,
			Price: int64(t.Price),
			Quota: t.Quota,
		})
	}
	for _, p := range d.Promotions {
		dto.Promotions = append(dto.Promotions, PromotionDTO{
			ID:        string(p.ID),
			Title:     p.Title,
			StartDate: p.StartDate.Format(time.RFC3339),
			EndDate:   p.EndDate.Format(time.RFC3339),
		})
	}
	return dto
}

func toTransactionDTO(d ticketing.TransactionDetail) TransactionDTO {
	dto := TransactionDTO{
		ID:           string(d.Transaction.ID),
		BuyerID:      string(d.Transaction.BuyerID),
		EventID:      string(d.Transaction.EventID),
		TierID:       string(d.Transaction.TierID),
		Quantity:     d.Transaction.Quantity,
		TotalPrice:   int64(d.Transaction.TotalPrice),
		Status:       string(d.Transaction.Status),
		PaymentProof: d.Transaction.PaymentProof,
		CreatedAt:    d.Transaction.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    d.Transaction.UpdatedAt.Format(time.RFC3339),
	}
	if d.PointsUsage != nil {
		dto.PointsUsed = int64(d.PointsUsage.UsedPoints)
	}
	return dto
}

func toPointsSummaryDTO(s ticketing.PointsSummary) PointsSummaryDTO {
	dto := PointsSummaryDTO{
		AccountID: string(s.AccountID),
		Balance:   int64(s.Balance),
		Grants:    []PointGrantDTO{},
	}
	for _, g := range s.Grants {
		dto.Grants = append(dto.Grants, PointGrantDTO{
			ID:            string(g.ID),
			Amount:        int64(g.Amount),
			Reason:        g.Reason,
			ExpiresAt:     g.ExpiresAt.Format(time.RFC3339),
			Active:        g.Active,
			TransactionID: string(g.TransactionID),
			CreatedAt:     g.CreatedAt.Format(time.RFC3339),
		})
	}
	return dto
}

func toDashboardDTO(r ticketing.DashboardReport) DashboardDTO {
	dto := DashboardDTO{
		OrganizerID:       string(r.OrganizerID),
		Events:            []EventReportDTO{},
		GrossRevenue:      int64(r.GrossRevenue),
		AverageOrderValue: r.AverageOrderValue.String(),
	}
	for _, e := range r.Events {
		byStatus := make(map[string]int, len(e.CountByStatus))
		for s, n := range e.CountByStatus {
			byStatus[string(s)] = n
		}
		dto.Events = append(dto.Events, EventReportDTO{
			EventID:       string(e.EventID),
			EventName:     e.EventName,
			CountByStatus: byStatus,
			TicketsSold:   e.TicketsSold,
			GrossRevenue:  int64(e.GrossRevenue),
			PointsOffset:  int64(e.PointsOffset),
		})
	}
	return dto
}
