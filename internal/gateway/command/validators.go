package command

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult is the outcome of one response validator.
type ValidationResult struct {
	Valid    bool
	Messages []string
}

func valid() ValidationResult { return ValidationResult{Valid: true} }

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Messages: []string{fmt.Sprintf(format, args...)}}
}

// Validator inspects a decoded response. Validators never mutate state.
type Validator func(subj domain.Subject, resp *Response) ValidationResult

// ReferenceMatches requires the response to echo the expected order reference.
func ReferenceMatches(subj domain.Subject, resp *Response) ValidationResult {
	expected := strings.TrimSpace(subj.Reference)
	if expected == "" || resp.Reference == expected {
		return valid()
	}
	return invalid("response reference %q does not match expected %q", resp.Reference, expected)
}

// StatusFieldPresent checks the response against the protocol schema for the operation.
func StatusFieldPresent(subj domain.Subject, resp *Response) ValidationResult {
	schema := resp.Protocol.ResponseSchema(resp.Operation)
	if schema == "" {
		return valid()
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(resp.Body))
	if err != nil {
		return invalid("response schema check failed: %v", err)
	}
	if result.Valid() {
		return valid()
	}
	out := ValidationResult{}
	for _, desc := range result.Errors() {
		out.Messages = append(out.Messages, "response "+desc.String())
	}
	return out
}

// CurrencySupported requires request and response currencies to be supported by the protocol.
func CurrencySupported(subj domain.Subject, resp *Response) ValidationResult {
	out := valid()
	if c := strings.ToUpper(strings.TrimSpace(subj.Currency)); c != "" && !domain.SupportsCurrency(resp.Protocol, c) {
		out = invalid("currency %q is not supported by the %s protocol", c, resp.Protocol.Name())
	}
	if c := resp.Currency; c != "" && !domain.SupportsCurrency(resp.Protocol, c) {
		out.Valid = false
		out.Messages = append(out.Messages, fmt.Sprintf("response currency %q is not supported by the %s protocol", c, resp.Protocol.Name()))
	}
	return out
}

// runValidators runs every validator and aggregates all failure messages.
func runValidators(validators []Validator, subj domain.Subject, resp *Response) []string {
	var messages []string
	for _, validate := range validators {
		result := validate(subj, resp)
		if !result.Valid {
			messages = append(messages, result.Messages...)
		}
	}
	return messages
}
