package validation

import "stockwatch/internal/models"

// Enum values. These MUST match the CHECK constraints in the database package.
var (
	ValidChannels       = []string{models.ChannelEmail, models.ChannelWhatsApp, models.ChannelSMS}
	ValidRestockMethods = []string{models.RestockManual, models.RestockCSVUpload, models.RestockQuick, models.RestockSupplierLink}
	ValidPOStatuses     = []string{"draft", "sent", "confirmed", "received", "cancelled"}
	ValidRoles          = []string{"admin", "manager", "viewer"}
	ValidExportKinds    = []string{"waitlist", "restocks"}
	ValidExportFormats  = []string{"csv", "xlsx"}
)
