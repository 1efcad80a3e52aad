package shared

import "fmt"

// LedgerLockKey names the critical section guarding balance recalculation of
// one (chart account, organization) pair.
func LedgerLockKey(chartAccountID, organizationID int64) string {
	return fmt.Sprintf("ledger:account:%d:org:%d:lock", chartAccountID, organizationID)
}

// RequisitionSequenceKey names the numbering sequence of a requisition year.
func RequisitionSequenceKey(year int) string {
	return fmt.Sprintf("procurement:pr:%04d", year)
}
