package notify

import (
	"fmt"
	"strings"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// Event type names used with Notifier.Notify. They match the values accepted
// by the notify.events configuration list.
const (
	EventSignal      = "signal"
	EventHiddenOrder = "hidden_order"
)

// FormatSignal renders a signal as a notification title and body.
func FormatSignal(sig domain.Signal) (title, message string) {
	title = fmt.Sprintf("%s %s (%.0f%%)", sig.Symbol, sig.Direction, sig.Confidence)

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", sig.Inputs.Session)
	fmt.Fprintf(&b, "Queue imbalance: %+.2f | Spread: %.1f bps\n", sig.Inputs.QueueImbalance, sig.Inputs.SpreadBps)
	if len(sig.Reasons) > 0 {
		b.WriteString("Reasons:\n")
		for _, r := range sig.Reasons {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	return title, b.String()
}

// FormatAlert renders a hidden-order alert as a notification title and body.
func FormatAlert(alert domain.HiddenOrderAlert) (title, message string) {
	title = fmt.Sprintf("%s %s @ %.2f (%s)", alert.Symbol, alert.Kind, alert.Price, alert.Strength)

	var b strings.Builder
	fmt.Fprintf(&b, "Side: %s\n", alert.Side)
	if alert.RefreshCount > 0 {
		fmt.Fprintf(&b, "Refills: %d\n", alert.RefreshCount)
	}
	for _, e := range alert.Evidence {
		fmt.Fprintf(&b, "  - %s\n", e)
	}
	return title, b.String()
}
