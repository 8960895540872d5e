// Package audit appends security-relevant decisions to an append-only table.
// Recording never fails the surrounding request; a broken audit store must
// not turn into a denial of service.
package audit

import (
	"encoding/json"
	"log"

	"gorm.io/gorm"

	"github.com/yvza/sudo.party-sub000/app/models"
)

const (
	KindValidationFailed = "validation_failed"
	KindSignatureInvalid = "signature_invalid"
	KindTamperSuspected  = "tamper_suspected"
	KindWebhookRejected  = "webhook_rejected"
	KindGrantApplied     = "grant_applied"
	KindSessionRevoked   = "session_revoked"
)

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one event. The context map lands as JSON so suspected
// tampering keeps its full server-side detail while clients only ever see a
// generic rejection.
func (r *Recorder) Record(kind, walletAddress, clientIP, detail string, context map[string]interface{}) {
	contextJSON := ""
	if len(context) > 0 {
		if b, err := json.Marshal(context); err == nil {
			contextJSON = string(b)
		}
	}

	event := &models.AuditEvent{
		Kind:          kind,
		WalletAddress: models.NormalizeAddress(walletAddress),
		ClientIP:      clientIP,
		Detail:        detail,
		ContextJSON:   contextJSON,
	}
	if err := r.db.Create(event).Error; err != nil {
		log.Printf("audit: failed to record %s event: %v", kind, err)
	}
}
