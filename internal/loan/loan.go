// Package loan computes amortized loan figures and their rupiah
// presentation for the calculator flow.
package loan

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ValidationError reports unusable calculator input. The flow router
// recovers it into a re-rendered screen; it never reaches HTTP.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "loan: " + e.Reason
}

// Result holds the raw amortization figures in rupiah.
type Result struct {
	Monthly  float64
	Total    float64
	Interest float64
}

// Calculate applies the standard amortization formula.
//
//	monthly = P * i * (1+i)^n / ((1+i)^n - 1),  i = monthlyRatePct / 100
//
// When the rate is zero, or the denominator degenerates to zero, the
// payment falls back to simple division P/n.
func Calculate(principal float64, months int, monthlyRatePct float64) (Result, error) {
	if principal <= 0 {
		return Result{}, &ValidationError{Reason: fmt.Sprintf("principal must be positive, got %v", principal)}
	}
	if months <= 0 {
		return Result{}, &ValidationError{Reason: fmt.Sprintf("duration must be positive, got %d", months)}
	}

	i := monthlyRatePct / 100
	n := float64(months)

	var monthly float64
	factor := math.Pow(1+i, n)
	if i == 0 || factor-1 == 0 {
		monthly = principal / n
	} else {
		monthly = principal * i * factor / (factor - 1)
	}

	total := monthly * n
	return Result{
		Monthly:  monthly,
		Total:    total,
		Interest: total - principal,
	}, nil
}

// idr prints integers with Indonesian digit grouping ("1.000.000").
var idr = message.NewPrinter(language.Indonesian)

// FormatIDR renders an amount as rupiah with thousands separators and no
// decimal places. The client renders these strings raw, so the formatting
// here is the presentation contract.
func FormatIDR(amount float64) string {
	return idr.Sprintf("Rp %d", int64(math.Round(amount)))
}

// ScreenData builds the display-ready loan-result screen payload.
func ScreenData(principal float64, months int, monthlyRatePct float64) (map[string]any, error) {
	res, err := Calculate(principal, months, monthlyRatePct)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"principal":       FormatIDR(principal),
		"duration":        fmt.Sprintf("%d bulan", months),
		"rate":            idr.Sprintf("%v%% per bulan", monthlyRatePct),
		"monthly_payment": FormatIDR(res.Monthly),
		"total_payment":   FormatIDR(res.Total),
		"total_interest":  FormatIDR(res.Interest),
	}, nil
}
