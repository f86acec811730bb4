package log

// Common field names for structured logging
const (
	FieldComponent       = "component"
	FieldRequestID       = "request_id"
	FieldMethod          = "method"
	FieldPath            = "path"
	FieldStatusCode      = "status_code"
	FieldDuration        = "duration_ms"
	FieldError           = "error"
	FieldOperation       = "operation"
	FieldInvoiceID       = "invoice_id"
	FieldEntryID         = "entry_id"
	FieldCurrency        = "currency"
	FieldAccountCurrency = "account_currency"
	FieldTotal           = "total"
	FieldEntryCount      = "entries"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentInvoice   = "invoice"
	ComponentTimesheet = "timesheet"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentRates     = "rates"
)
