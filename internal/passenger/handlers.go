package passenger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/extraction"
)

func init() {
	// Amounts go out as JSON numbers; quoted amounts still decode.
	decimal.MarshalJSONWithoutQuotes = true
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusResponse is the {status, message} body used by the workflow endpoints
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeStatus(w http.ResponseWriter, code int, status, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, statusResponse{Status: status, Message: message})
}

// pathID parses the {id} path segment
func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// passengerResponse adds the booking id to a passenger
type passengerResponse struct {
	*Passenger
	BookingID string `json:"booking_id"`
}

// handleIndex serves the dashboard
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleListPassengers returns all passengers
func (s *Server) handleListPassengers(w http.ResponseWriter, r *http.Request) {
	passengers, err := s.service.ListPassengers()
	if err != nil {
		slog.Error("Error listing passengers", "error", err)
		writeStatus(w, http.StatusInternalServerError, "error", "Internal server error")
		return
	}

	response := make([]passengerResponse, 0, len(passengers))
	for _, p := range passengers {
		response = append(response, passengerResponse{Passenger: p, BookingID: p.BookingID()})
	}
	writeJSON(w, http.StatusOK, response)
}

// handleListInvoices returns all invoices with passenger names
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		writeStatus(w, http.StatusInternalServerError, "error", "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// handleStats returns dashboard counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		slog.Error("Error computing stats", "error", err)
		writeStatus(w, http.StatusInternalServerError, "error", "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDownload acquires a passenger's invoice document
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "Invalid passenger ID")
		return
	}

	result, err := s.service.AcquireDocument(r.Context(), id)
	if errors.Is(err, ErrPassengerNotFound) {
		writeStatus(w, http.StatusNotFound, "error", "Passenger not found")
		return
	}
	if err != nil {
		slog.Error("Error acquiring document", "passenger_id", id, "error", err)
		writeStatus(w, http.StatusInternalServerError, "error", "Internal server error")
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, result)
}

// parseResponse is returned when an invoice was parsed
type parseResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	InvoiceData *Invoice `json:"invoice_data"`
}

// handleParse extracts an invoice from a passenger's document
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "Invalid passenger ID")
		return
	}

	invoice, err := s.service.ParseInvoice(id)
	switch {
	case errors.Is(err, ErrPassengerNotFound):
		writeStatus(w, http.StatusNotFound, "error", "Passenger not found")
	case errors.Is(err, extraction.ErrInputState):
		writeStatus(w, http.StatusBadRequest, "error", "Invoice must be downloaded first")
	case errors.Is(err, ErrParseFailed):
		// No partial data leaves the server
		writeStatus(w, http.StatusOK, "error", "Failed to parse invoice")
	case err != nil:
		slog.Error("Error parsing invoice", "passenger_id", id, "error", err)
		writeStatus(w, http.StatusInternalServerError, "error", "Internal server error")
	default:
		setCORSHeaders(w)
		writeJSON(w, http.StatusOK, parseResponse{
			Status:      "success",
			Message:     "Invoice parsed successfully",
			InvoiceData: invoice,
		})
	}
}

// documentInfoResponse tells the dashboard where to view a document
type documentInfoResponse struct {
	Status  string `json:"status"`
	PDFURL  string `json:"pdf_url"`
	Message string `json:"message"`
}

// handleDocumentInfo reports whether a passenger's document can be viewed
func (s *Server) handleDocumentInfo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "Invalid passenger ID")
		return
	}

	passenger, err := s.service.GetPassenger(id)
	if err != nil || !passenger.DocumentLocated() {
		writeStatus(w, http.StatusNotFound, "error", "PDF not available")
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, documentInfoResponse{
		Status:  "success",
		PDFURL:  fmt.Sprintf("/pdf/%d", id),
		Message: "PDF available for viewing",
	})
}

// handleDocument serves a passenger's stored document
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid passenger ID", http.StatusBadRequest)
		return
	}

	data, contentType, err := s.service.GetDocument(id)
	if err != nil {
		setCORSHeaders(w)
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=invoice_%d", id))
	w.Write(data)
}

// handleReview toggles the review flag of an invoice
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	invoiceID := r.PathValue("id")

	var req struct {
		Reviewed bool `json:"reviewed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "Invalid request body")
		return
	}

	err := s.service.SetReviewed(invoiceID, req.Reviewed)
	if errors.Is(err, ErrInvoiceNotFound) {
		writeStatus(w, http.StatusNotFound, "error", "Invoice not found")
		return
	}
	if err != nil {
		slog.Error("Error updating review flag", "invoice_id", invoiceID, "error", err)
		writeStatus(w, http.StatusInternalServerError, "error", "Internal server error")
		return
	}

	message := "Invoice unmarked for review"
	if req.Reviewed {
		message = "Invoice marked for review"
	}
	writeStatus(w, http.StatusOK, "success", message)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
