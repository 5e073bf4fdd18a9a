package credit

import (
	"math"
	"time"

	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
)

// Evaluator decides credit risk for client accounts. It only reads the sales
// it is handed; applying a resulting block is the caller's responsibility so
// the write stays visible in the checkout path.
type Evaluator struct {
	overdueDays int
}

func NewEvaluator(overdueDaysThreshold int) *Evaluator {
	if overdueDaysThreshold < 1 {
		overdueDaysThreshold = 90
	}
	return &Evaluator{overdueDays: overdueDaysThreshold}
}

func (e *Evaluator) OverdueDaysThreshold() int {
	return e.overdueDays
}

// Assess scans a client's unpaid credit sales and reports whether the account
// should be blocked before a new credit sale is accepted. The age of each
// unpaid sale is measured from its due date when set, otherwise from its
// creation date.
func (e *Evaluator) Assess(unpaid []domain.Sale, now time.Time) domain.CreditAssessment {
	oldest := 0
	for _, sale := range unpaid {
		basis := sale.CreatedAt
		if sale.DueDate != nil {
			basis = *sale.DueDate
		}
		days := int(now.Sub(basis).Hours() / 24)
		if days > oldest {
			oldest = days
		}
	}
	return domain.CreditAssessment{
		ShouldAutoBlock:  oldest >= e.overdueDays,
		OldestUnpaidDays: oldest,
	}
}

// Analytics aggregates receivable health over committed credit sales.
// Reporting-only: nothing in the checkout path depends on it.
func (e *Evaluator) Analytics(storeID string, creditSales []domain.Sale, now time.Time) domain.CreditReport {
	report := domain.CreditReport{
		StoreID:     storeID,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}

	var earliest time.Time
	overdueClients := make(map[string]struct{})
	for _, sale := range creditSales {
		if sale.Status != domain.SaleStatusApproved {
			continue
		}
		report.TotalIssuedCents += sale.TotalCents
		report.OutstandingCents += sale.RemainingCents
		if earliest.IsZero() || sale.CreatedAt.Before(earliest) {
			earliest = sale.CreatedAt
		}
		if sale.RemainingCents < 1 {
			continue
		}
		basis := sale.CreatedAt
		if sale.DueDate != nil {
			basis = *sale.DueDate
		}
		if int(now.Sub(basis).Hours()/24) >= e.overdueDays {
			report.OverdueCents += sale.RemainingCents
			if sale.ClientID != "" {
				overdueClients[sale.ClientID] = struct{}{}
			}
		}
	}
	report.OverdueClients = len(overdueClients)

	if report.TotalIssuedCents > 0 {
		periodDays := math.Max(1, now.Sub(earliest).Hours()/24)
		issuedPerDay := float64(report.TotalIssuedCents) / periodDays
		report.DaysSalesOutstanding = round2(float64(report.OutstandingCents) / issuedPerDay)
		report.BadDebtRate = round2(float64(report.OverdueCents) / float64(report.TotalIssuedCents))
	}
	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
