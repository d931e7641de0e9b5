// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"encoding/json"

	"github.com/ksr-verse/MCP/internal/logging"
)

// PersistAndLogInvocation saves an invocation record to the store
// (best-effort) and debug-logs it.
func PersistAndLogInvocation(store AuditStore, record *InvocationRecord, logger *logging.Logger) {
	if store != nil {
		if err := store.SaveInvocation(record); err != nil {
			logger.Warnf("Failed to persist invocation of %s: %v", record.Tool, err)
		}
	}

	jsonData, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		logger.Warnf("Failed to marshal invocation record for %s: %v", record.Tool, err)
	} else {
		logger.Debugf("Tool %s invocation: %s", record.Tool, string(jsonData))
	}
}
