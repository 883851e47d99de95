package shared

// DomainError is a business-rule violation with a stable machine-readable
// code. Infrastructure failures stay plain wrapped errors, not DomainErrors.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a DomainError with the given code and message
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}
