package shared

import "fmt"

// BillingLockKey builds redis keys for the per-customer invoice critical section.
func BillingLockKey(customerEntityID int64) string {
	return fmt.Sprintf("billing:customer:%d:lock", customerEntityID)
}
