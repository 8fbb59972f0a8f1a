package http

import (
	"net/http"

	"optify/internal/core"
	"optify/internal/finance"
	"optify/internal/storage"
)

// transactionResponse adds the signed amount a ledger view shows.
type transactionResponse struct {
	core.Transaction
	DisplayAmount core.Money `json:"display_amount"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{Transaction: t, DisplayAmount: finance.DisplayAmount(t)}
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Count        int                   `json:"count"`
}

type summaryResponse struct {
	core.Bucket
	Filter storage.Filter `json:"filter"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := parseTransactionRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := req.toTransaction(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := s.transactions.Create(r.Context(), tx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.httpLog.LogTransactionCreated(r.Context(), userID, saved.ID, string(saved.Type), saved.Amount.Cents, string(saved.Category))

	w.Header().Set("Location", r.URL.Path+"/"+saved.ID)
	writeJSON(w, http.StatusCreated, newTransactionResponse(saved))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := s.transactions.List(r.Context(), userID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := transactionListResponse{
		Transactions: make([]transactionResponse, 0, len(txs)),
		Count:        len(txs),
	}
	for _, t := range txs {
		resp.Transactions = append(resp.Transactions, newTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.transactions.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.transactions.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.transactions.Summary(r.Context(), userID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Bucket: b, Filter: f})
}
