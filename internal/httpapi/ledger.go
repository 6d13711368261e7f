package httpapi

import (
	"net/http"
	"time"

	"storecore/internal/ledger"

	"github.com/go-chi/chi/v5"
)

type ledgerHandler struct {
	svc LedgerService
}

func (h *ledgerHandler) accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountView, len(accounts))
	for i, a := range accounts {
		out[i] = accountView{Code: a.Code, Name: a.Name, Type: a.Type, Balance: a.Balance}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ledgerHandler) balance(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	bal, err := h.svc.AccountBalance(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code, "balance": bal})
}

func (h *ledgerHandler) post(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.svc.Post(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntryView(*e))
}

func (h *ledgerHandler) draft(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.svc.SaveDraft(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntryView(*e))
}

func (h *ledgerHandler) postDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	e, err := h.svc.PostDraft(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryView(*e))
}

func (h *ledgerHandler) reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req reverseRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.svc.Reverse(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntryView(*e))
}

func (h *ledgerHandler) entry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	e, err := h.svc.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryView(e))
}

// entries lists entries whose reference starts with ?reference=.
func (h *ledgerHandler) entries(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("reference")
	if prefix == "" {
		badRequest(w, "reference is required")
		return
	}
	entries, err := h.svc.EntriesByReferencePrefix(r.Context(), prefix)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = newEntryView(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ledgerHandler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(w, r, "as_of", time.Now(), true)
	if !ok {
		return
	}
	tb, err := h.svc.TrialBalance(r.Context(), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tb)
}

func (h *ledgerHandler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, ok := dateParam(w, r, "from", time.Time{}, false)
	if !ok {
		return
	}
	to, ok := dateParam(w, r, "to", time.Now(), true)
	if !ok {
		return
	}
	pl, err := h.svc.ProfitAndLoss(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (h *ledgerHandler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(w, r, "as_of", time.Now(), true)
	if !ok {
		return
	}
	bs, err := h.svc.BalanceSheet(r.Context(), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

// dateParam parses an RFC 3339 timestamp or a plain date, returning def when
// the parameter is absent. A plain date used as an upper bound covers the
// whole day.
func dateParam(w http.ResponseWriter, r *http.Request, name string, def time.Time, upper bool) (time.Time, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		if upper {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, true
	}
	badRequest(w, name+" must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	return time.Time{}, false
}

var _ LedgerService = (*ledger.Service)(nil)
