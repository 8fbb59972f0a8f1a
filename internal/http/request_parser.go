package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"optify/internal/core"
)

const maxBodyBytes = 64 << 10

// transactionRequest is the body accepted by the create endpoint, either as
// JSON or as a urlencoded form with the same field names.
type transactionRequest struct {
	Type        string       `json:"type"`
	Amount      amountString `json:"amount"`
	Description string       `json:"description"`
	Date        string       `json:"date"`
	Category    string       `json:"category"`
	EmployeeID  string       `json:"employee_id"`
	PlatformID  string       `json:"platform_id"`
}

// amountString accepts both 12.34 and "12.34" so no float rounding happens.
type amountString string

func (a *amountString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return core.ErrInvalidAmount
	}
	*a = amountString(n.String())
	return nil
}

// parseTransactionRequest reads the request body into a transactionRequest.
func parseTransactionRequest(w http.ResponseWriter, r *http.Request) (transactionRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return transactionRequest{}, badRequest("request body exceeds %d bytes", tooLarge.Limit)
		}
		return transactionRequest{}, badRequest("read body: %v", err)
	}

	var req transactionRequest
	if isJSON(r.Header.Get("Content-Type"), body) {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, core.ErrInvalidAmount) {
				return transactionRequest{}, err
			}
			return transactionRequest{}, badRequest("malformed JSON: %v", err)
		}
	} else {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return transactionRequest{}, badRequest("malformed form: %v", err)
		}
		req = transactionRequest{
			Type:        form.Get("type"),
			Amount:      amountString(form.Get("amount")),
			Description: form.Get("description"),
			Date:        form.Get("date"),
			Category:    form.Get("category"),
			EmployeeID:  form.Get("employee_id"),
			PlatformID:  form.Get("platform_id"),
		}
	}
	return req, nil
}

func isJSON(contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if mt == "application/json" {
			return true
		}
		if mt == "application/x-www-form-urlencoded" {
			return false
		}
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// toTransaction converts the request for userID. Category may be empty, in
// which case it is derived from the description.
func (req transactionRequest) toTransaction(userID string) (core.Transaction, error) {
	cents, err := core.ParseDecimalToCents(string(req.Amount))
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		UserID:      userID,
		Type:        core.TransactionType(strings.ToLower(sanitizeInput(req.Type))),
		Amount:      core.Cents(cents),
		Description: sanitizeInput(req.Description),
		Date:        strings.TrimSpace(req.Date),
		Category:    core.Category(strings.ToLower(sanitizeInput(req.Category))),
		EmployeeID:  sanitizeInput(req.EmployeeID),
		PlatformID:  sanitizeInput(req.PlatformID),
	}, nil
}
