package models

// ResponseEnvelope wraps every response the service writes.
type ResponseEnvelope struct {
	Success    bool        `json:"success"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"status_code"`
	Body       interface{} `json:"body,omitempty"`
	S3URL      string      `json:"s3_url,omitempty"`
}

const successCode = "SUCCESS"

// NewSuccessEnvelope builds a 200 envelope around body.
func NewSuccessEnvelope(message string, body interface{}) ResponseEnvelope {
	return ResponseEnvelope{
		Success:    true,
		Code:       successCode,
		Message:    message,
		StatusCode: 200,
		Body:       body,
	}
}

// NewErrorEnvelope builds a failure envelope. Success is false for every
// code other than SUCCESS.
func NewErrorEnvelope(code, message string, status int) ResponseEnvelope {
	return ResponseEnvelope{
		Success:    code == successCode,
		Code:       code,
		Message:    message,
		StatusCode: status,
	}
}
