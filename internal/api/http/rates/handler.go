package rates

import (
	"errors"
	"log"
	"net/http"

	"service-rates/internal"
	"service-rates/internal/models"
	"service-rates/internal/poller"
)

// JobController is the part of the poller the API drives.
type JobController interface {
	ChangeJob(job internal.FetchJob) error
	Job() (internal.FetchJob, bool)
}

type Handler struct {
	latest    internal.SnapshotSource
	converter *internal.RateConverter
	jobs      JobController
	template  internal.JobTemplate
	audit     internal.RequestAuditLogger
}

func New(latest internal.SnapshotSource, jobs JobController, template internal.JobTemplate, audit internal.RequestAuditLogger) *Handler {
	return &Handler{
		latest:    latest,
		converter: internal.NewRateConverter(latest),
		jobs:      jobs,
		template:  template,
		audit:     audit,
	}
}

// Register mounts the public routes and the base-change route behind auth.
func (h *Handler) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.HandleFunc("/api/v1/rates", h.listRates)
	mux.HandleFunc("/api/v1/rate", h.getRate)
	mux.HandleFunc("/api/v1/job", h.getJob)
	mux.Handle("/api/v1/base", auth(http.HandlerFunc(h.changeBase)))
	mux.HandleFunc("/api/v1/", h.notFound)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.fail(w, r, http.StatusNotFound, "not_found", "unknown endpoint "+r.URL.Path, "")
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}

	amount, err := internal.ParseMultiplier(r.URL.Query().Get("amount"))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid_amount", err.Error(), "")
		return
	}

	snap, ok := h.latest.Latest()
	if !ok {
		h.fail(w, r, http.StatusServiceUnavailable, "no_rates", internal.ErrNoSnapshot.Error(), "")
		return
	}

	rows := internal.Convert(snap, amount)
	out := models.RatesResponse{
		Base:      snap.Base().String(),
		FetchedAt: snap.FetchedAt().UTC(),
		Amount:    amount.String(),
		Rates:     make([]models.RateRow, 0, len(rows)),
	}
	for _, row := range rows {
		out.Rates = append(out.Rates, models.RateRow{
			Code:  row.Code.String(),
			Rate:  row.Rate.String(),
			Value: internal.FormatRate(row.Value),
		})
	}

	h.ok(w, r, http.StatusOK, out, snap.Base())
}

func (h *Handler) getRate(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}

	base, err := internal.NewCurrencyCode(r.URL.Query().Get("base"))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "bad_request", err.Error(), "")
		return
	}
	quote, err := internal.NewCurrencyCode(r.URL.Query().Get("quote"))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "bad_request", err.Error(), base)
		return
	}

	out, err := h.converter.GetPairRate(base, quote)
	if err != nil {
		if errors.Is(err, internal.ErrNoSnapshot) {
			h.fail(w, r, http.StatusServiceUnavailable, "no_rates", err.Error(), base)
			return
		}
		h.fail(w, r, http.StatusBadRequest, "bad_request", err.Error(), base)
		return
	}

	h.ok(w, r, http.StatusOK, out, base)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}

	job, ok := h.jobs.Job()
	if !ok {
		h.fail(w, r, http.StatusServiceUnavailable, "not_running", "poller is not running", "")
		return
	}
	h.ok(w, r, http.StatusOK, models.JobResponse{
		Base:   job.Base.String(),
		URL:    job.URL,
		Period: job.Period.String(),
	}, job.Base)
}

func (h *Handler) changeBase(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPut, http.MethodPost) {
		return
	}

	ccy, err := internal.NewCurrencyCode(r.URL.Query().Get("ccy"))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "bad_request", err.Error(), "")
		return
	}

	job := h.template.For(ccy)
	if err := h.jobs.ChangeJob(job); err != nil {
		switch {
		case errors.Is(err, poller.ErrInvalidJob):
			h.fail(w, r, http.StatusBadRequest, "invalid_job", err.Error(), ccy)
		case errors.Is(err, poller.ErrNotStarted), errors.Is(err, poller.ErrStopped):
			h.fail(w, r, http.StatusConflict, "not_running", err.Error(), ccy)
		default:
			h.fail(w, r, http.StatusInternalServerError, "internal_error", err.Error(), ccy)
		}
		return
	}

	h.ok(w, r, http.StatusAccepted, models.JobResponse{
		Base:   ccy.String(),
		URL:    job.URL,
		Period: job.Period.String(),
	}, ccy)
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	h.fail(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", "")
	return false
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, status int, v any, base internal.CurrencyCode) {
	models.WriteJSON(w, status, v)
	h.logRequest(r, status, base)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, code, msg string, base internal.CurrencyCode) {
	models.WriteBizErr(w, status, code, msg)
	h.logRequest(r, status, base)
}

func (h *Handler) logRequest(r *http.Request, status int, base internal.CurrencyCode) {
	if err := h.audit.LogRequest(r.Context(), r.URL.Path, status, base); err != nil {
		log.Printf("request log: %v", err)
	}
}
