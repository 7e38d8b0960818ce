package logx

const (
	FieldAccountID       = "account-id"
	FieldAppName         = "app-name"
	FieldAppVersion      = "app-version"
	FieldAttempt         = "attempt"
	FieldCode            = "code"
	FieldDurationMs      = "duration-ms"
	FieldError           = "error"
	FieldHTTPMethod      = "http-method"
	FieldHTTPRequest     = "http-request"
	FieldHTTPResponse    = "http-response"
	FieldIP              = "ip"
	FieldMessageID       = "message-id"
	FieldOutcome         = "outcome"
	FieldReason          = "reason"
	FieldRequestBody     = "request-body"
	FieldRequestID       = "request-id"
	FieldResponseBody    = "response-body"
	FieldResponseHeaders = "response-headers"
	FieldResponseStatus  = "response-status"
	FieldRunID           = "run-id"
	FieldStack           = "stack"
	FieldStatus          = "status"
	FieldTargetUserID    = "target-user-id"
	FieldTemplateID      = "template-id"
	FieldTraceID         = "trace-id"
	FieldTradeID         = "trade-id"
	FieldURL             = "url"
	FieldUserID          = "user-id"
)
