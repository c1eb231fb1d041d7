package log

// Attribute keys.
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration"
	FieldUserAgent     = "user_agent"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldTransactionID = "transaction_id"
	FieldTitle         = "title"
	FieldAmount        = "amount"
	FieldType          = "type"
	FieldDate          = "date"
	FieldFromDate      = "from_date"
	FieldToDate        = "to_date"
	FieldGeneration    = "generation"
	FieldCount         = "count"
)

// Component names.
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentTransaction = "transaction"
	ComponentSession     = "session"
	ComponentGateway     = "gateway"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentCache       = "cache"
	ComponentSecurity    = "security"
	ComponentRateLimit   = "rate_limit"
	ComponentTrace       = "trace"
	ComponentBackend     = "backend"
	ComponentTemplate    = "template"
)

// Operation names.
const (
	OpCreate   = "create"
	OpDelete   = "delete"
	OpList     = "list"
	OpFetch    = "fetch"
	OpFilter   = "filter"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpValidate = "validate"
	OpRender   = "render"
)

// Error categories for the error_type attribute.
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
)
