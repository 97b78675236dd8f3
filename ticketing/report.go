/*
report.go - Organizer revenue summary

PURPOSE:
  Aggregates an organizer's transactions into per-event counts and revenue
  figures for the dashboard. Sums stay in integer Money; averages use
  decimal so a division never silently truncates.
*/
package ticketing

import (
	"context"

	"github.com/shopspring/decimal"
)

// EventReport summarizes one event's sales.
type EventReport struct {
	EventID       EventID
	EventName     string
	CountByStatus map[TransactionStatus]int
	TicketsSold   int   // quantity across done transactions
	GrossRevenue  Money // sum of done totals (after point offsets)
	PointsOffset  Money // points redeemed against done transactions
}

// DashboardReport is the organizer-wide rollup.
type DashboardReport struct {
	OrganizerID       AccountID
	Events            []EventReport
	GrossRevenue      Money
	AverageOrderValue decimal.Decimal // gross revenue / done transactions
}

// OrganizerDashboard aggregates all transactions against the organizer's
// events. Only the organizer themselves may ask for it.
func (e *Engine) OrganizerDashboard(ctx context.Context, organizerID AccountID) (*DashboardReport, error) {
	acct, err := e.store.GetAccount(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrNotFound
	}
	if acct.Role != RoleOrganizer {
		return nil, ErrForbidden
	}

	txns, err := e.store.ListTransactionsByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, err
	}

	byEvent := make(map[EventID]*EventReport)
	var order []EventID
	var gross Money
	doneCount := 0

	for _, txn := range txns {
		rep, ok := byEvent[txn.EventID]
		if !ok {
			event, err := e.store.GetEvent(ctx, txn.EventID)
			if err != nil {
				return nil, err
			}
			name := ""
			if event != nil {
				name = event.Name
			}
			rep = &EventReport{
				EventID:       txn.EventID,
				EventName:     name,
				CountByStatus: make(map[TransactionStatus]int),
			}
			byEvent[txn.EventID] = rep
			order = append(order, txn.EventID)
		}

		rep.CountByStatus[txn.Status]++
		if txn.Status == StatusDone {
			rep.TicketsSold += txn.Quantity
			rep.GrossRevenue += txn.TotalPrice
			gross += txn.TotalPrice
			doneCount++

			usage, err := e.store.GetPointsUsage(ctx, txn.ID)
			if err != nil {
				return nil, err
			}
			if usage != nil {
				rep.PointsOffset += usage.UsedPoints
			}
		}
	}

	report := &DashboardReport{
		OrganizerID:  organizerID,
		GrossRevenue: gross,
	}
	for _, id := range order {
		report.Events = append(report.Events, *byEvent[id])
	}
	if doneCount > 0 {
		report.AverageOrderValue = decimal.NewFromInt(int64(gross)).
			Div(decimal.NewFromInt(int64(doneCount))).Round(2)
	}
	return report, nil
}
