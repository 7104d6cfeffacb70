package ratelimit

import "strings"

// ContractorKey builds the limiter key for a contractor's mutating requests.
func ContractorKey(contractorID string) string {
	contractorID = strings.TrimSpace(contractorID)
	if contractorID == "" {
		return ""
	}
	return "c:" + contractorID
}
