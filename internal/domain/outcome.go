package domain

import "fmt"

// DispatchOutcome is the result of one token-level send. Token-level errors
// are data, never exceptions: the fan-out aggregator folds these into a
// NotificationOutcome.
type DispatchOutcome struct {
	Token      string `json:"token"`
	DeviceType string `json:"device_type,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// NotificationOutcome is the notification-level reduction of all token-level
// outcomes for one fan-out.
type NotificationOutcome struct {
	Success      bool   `json:"success"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	LastError    string `json:"last_error,omitempty"`
	Summary      string `json:"summary"`
}

// ReduceOutcomes folds per-token outcomes into one notification-level
// outcome. Delivery to at least one device counts as overall success;
// partial reach is still useful on multi-device accounts.
func ReduceOutcomes(outcomes []DispatchOutcome) NotificationOutcome {
	var reduced NotificationOutcome
	for _, o := range outcomes {
		if o.Success {
			reduced.SuccessCount++
		} else {
			reduced.FailureCount++
			if o.Error != "" {
				reduced.LastError = o.Error
			}
		}
	}

	total := len(outcomes)
	if reduced.SuccessCount > 0 {
		reduced.Success = true
		reduced.Summary = fmt.Sprintf("Sent to %d/%d devices", reduced.SuccessCount, total)
	} else {
		reduced.Summary = fmt.Sprintf("Failed to send to all %d devices. Last error: %s", total, reduced.LastError)
	}

	return reduced
}

// FailedOutcome builds a notification-level failure that never reached any
// device, e.g. no targets or no credentials.
func FailedOutcome(reason string) NotificationOutcome {
	return NotificationOutcome{
		Success:   false,
		LastError: reason,
		Summary:   reason,
	}
}

// RedactToken truncates a device token for logs and outcome summaries.
func RedactToken(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
