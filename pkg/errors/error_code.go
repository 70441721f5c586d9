package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeMissingOrderField    ErrorCode = 103

	// Broker errors (200-299)
	ErrCodeSubmitFailed      ErrorCode = 200
	ErrCodePollFailed        ErrorCode = 201
	ErrCodeCancelFailed      ErrorCode = 202
	ErrCodeAuthFailed        ErrorCode = 203
	ErrCodeBrokerUnavailable ErrorCode = 204
	ErrCodeBrokerRejected    ErrorCode = 205

	// Store errors (300-399)
	ErrCodeStoreInitFailed   ErrorCode = 300
	ErrCodeStoreInsertFailed ErrorCode = 301
	ErrCodeStoreUpdateFailed ErrorCode = 302
	ErrCodeStoreQueryFailed  ErrorCode = 303

	// Trader errors (400-499)
	ErrCodeIllegalCall       ErrorCode = 400
	ErrCodeNoEntryOrder      ErrorCode = 401
	ErrCodeOrderNotSubmitted ErrorCode = 402
)
