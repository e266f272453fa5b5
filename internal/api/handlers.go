package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fjacquet/networth-sync/internal/csvimport"
	"fjacquet/networth-sync/internal/ingest"
	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/mailsource"
	"fjacquet/networth-sync/internal/models"
	"fjacquet/networth-sync/internal/parsererror"
	"fjacquet/networth-sync/internal/reconciler"
)

// PassRunner runs one ingestion pass.
type PassRunner interface {
	RunPass(ctx context.Context) (ingest.Summary, error)
}

// CSVImporter imports an observation file into an account.
type CSVImporter interface {
	Import(ctx context.Context, accountID, source string, r io.Reader) (csvimport.Result, error)
}

// Observer applies a single balance reading.
type Observer interface {
	ApplyObservation(ctx context.Context, obs models.Observation, opts ...reconciler.ObservationOption) (reconciler.ObservationResult, error)
}

// ObservationRequest is the body of a balance refresh.
type ObservationRequest struct {
	Value     *decimal.Decimal `json:"value"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Source    string           `json:"source,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserID(r.Context())
	s.logger.WithField("uid", uid).Info("Manual ingestion triggered")

	summary, err := s.runner.RunPass(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if mailsource.IsAuthError(err) {
			status = http.StatusBadGateway
		}
		s.logger.WithError(err).WithField(logging.FieldPassID, summary.PassID).Error("Manual ingestion failed")
		message := summary.Message
		if message == "" {
			message = err.Error()
		}
		writeJSON(w, status, Response{Count: summary.Applied, Message: message, Details: summary})
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Count: summary.Applied, Message: summary.Message, Details: summary})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: fmt.Sprintf("Invalid upload: %v", err)})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "Missing form file \"file\""})
		return
	}
	defer file.Close()

	result, err := s.importer.Import(r.Context(), accountID, header.Filename, file)
	if err != nil {
		status, message := importErrorStatus(err)
		if result.Message != "" {
			message = result.Message + ": " + message
		}
		s.logger.WithError(err).WithField(logging.FieldAccountID, accountID).Warn("CSV upload rejected")
		writeJSON(w, status, Response{Count: result.Imported, Message: message, Details: result})
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Count: result.Imported, Message: result.Message, Details: result})
}

func importErrorStatus(err error) (int, string) {
	var noValid *parsererror.NoValidRecordsError
	var badFormat *parsererror.InvalidFormatError
	switch {
	case errors.As(err, &noValid), errors.As(err, &badFormat):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ledgerstore.ErrAccountNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, ledgerstore.ErrTransactionConflict):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req ObservationRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: fmt.Sprintf("Invalid JSON body: %v", err)})
		return
	}
	if req.Value == nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "Missing field \"value\""})
		return
	}

	obs := models.Observation{AccountID: accountID, Value: *req.Value, Timestamp: time.Now(), Source: req.Source}
	if req.Timestamp != nil {
		obs.Timestamp = *req.Timestamp
	}
	if obs.Source == "" {
		obs.Source = models.SourceRefresh
	}

	res, err := s.observer.ApplyObservation(r.Context(), obs)
	if err != nil {
		status, message := importErrorStatus(err)
		writeJSON(w, status, Response{Message: message})
		return
	}

	message := fmt.Sprintf("Recorded %s for %s", res.Value.StringFixed(2), res.Day)
	if !res.ProjectionUpdated {
		message += ", current value kept"
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Count: 1, Message: message, Details: res})
}
