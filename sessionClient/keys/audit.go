package keys

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// KeyOperation represents a key operation for auditing
type KeyOperation struct {
	Type      string    `json:"type"`
	Address   string    `json:"address"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Details   string    `json:"details"`
}

// CreateAuditLog creates an audit log entry for a key operation
func CreateAuditLog(opType, address, details string, success bool) KeyOperation {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}

	return KeyOperation{
		Type:      opType,
		Address:   address,
		User:      user,
		Timestamp: time.Now(),
		Success:   success,
		Details:   details,
	}
}

// AuditKeyOperation logs key operations for security auditing
func AuditKeyOperation(log zerolog.Logger, operation KeyOperation) {
	evt := log.Info()
	if !operation.Success {
		evt = log.Warn()
	}
	evt.
		Str("operation", operation.Type).
		Str("address", operation.Address).
		Str("user", operation.User).
		Time("timestamp", operation.Timestamp).
		Bool("success", operation.Success).
		Str("details", operation.Details).
		Msg("key operation audit log")
}
