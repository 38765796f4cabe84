package node

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"okinoko-cipher_duel/contract"
	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
	"okinoko-cipher_duel/store/sqlite"
)

// SenderHeader carries the caller's address. Authenticating it is the job
// of whatever fronts the node.
const SenderHeader = "X-Duel-Sender"

// API exposes the ledger over HTTP.
type API struct {
	ledger  *Ledger
	store   *sqlite.Store
	engine  *coprocessor.Engine
	metrics *Metrics
	faucet  bool
	log     zerolog.Logger
}

func NewAPI(ledger *Ledger, store *sqlite.Store, engine *coprocessor.Engine, metrics *Metrics, faucet bool, log zerolog.Logger) *API {
	return &API{
		ledger:  ledger,
		store:   store,
		engine:  engine,
		metrics: metrics,
		faucet:  faucet,
		log:     log.With().Str("component", "http").Logger(),
	}
}

// allowance is the JSON form of a transfer.allow intent.
type allowance struct {
	Limit string `json:"limit"`
	Token string `json:"token"`
}

// callBody is the request body of every mutating endpoint.
type callBody struct {
	Input     *contract.SealedInput `json:"input,omitempty"`
	Allowance *allowance            `json:"allowance,omitempty"`
}

type callResponse struct {
	Receipt
	RoomID    *uint64 `json:"roomId,omitempty"`
	TurnIndex *uint64 `json:"turnIndex,omitempty"`
}

// Routes returns the API router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Handle("/metrics", a.metrics.Handler())
	r.Get("/coprocessor/keys", a.handlePublicKeys)
	r.Get("/handles/{handle}", a.handleDecrypt)
	r.Get("/tx/{txID}", a.handleTransaction)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", a.handleCreateRoom)
		r.Get("/count", a.handleRoomCount)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", a.handleGetRoom)
			r.Post("/join", a.handleJoinRoom)
			r.Post("/cancel", a.handleCancelRoom)
			r.Post("/probes", a.handleSubmitProbe)
			r.Post("/timeout", a.handleClaimTimeout)
			r.Get("/probes/last", a.handleLastProbe)
			r.Get("/probes/{n}", a.handleGetProbe)
			r.Get("/turn/{addr}", a.handleIsPlayerTurn)
			r.Get("/vault", a.handleGetVault)
			r.Get("/events", a.handleRoomEvents)
		})
	})
	r.Get("/players/{addr}/wins", a.handleWinCount)
	r.Get("/disclosures/{requestID}", a.handleGetDisclosure)
	r.Post("/disclosures/{requestID}/redeliver", a.handleRedeliver)
	r.Get("/accounts/{addr}/balances/{asset}", a.handleBalance)
	r.Post("/accounts/{addr}/faucet", a.handleFaucet)
	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// ---------- calls ----------

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	body, call, ok := a.decodeCall(w, r, "create_room")
	if !ok {
		return
	}
	var id uint64
	receipt, err := a.ledger.Execute(r.Context(), call, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		id, err = c.CreateRoom(chain, inputOf(body))
		return err
	})
	if err != nil {
		a.writeError(w, err, receipt.TxID)
		return
	}
	writeJSON(w, http.StatusCreated, callResponse{Receipt: receipt, RoomID: &id})
}

func (a *API) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	body, call, ok := a.decodeCall(w, r, "join_room")
	if !ok {
		return
	}
	a.execute(w, r, call, func(c *contract.Contract, chain sdk.Chain) error {
		return c.JoinRoom(chain, roomID, inputOf(body))
	})
}

func (a *API) handleCancelRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	_, call, ok := a.decodeCall(w, r, "cancel_room")
	if !ok {
		return
	}
	a.execute(w, r, call, func(c *contract.Contract, chain sdk.Chain) error {
		return c.CancelRoom(chain, roomID)
	})
}

func (a *API) handleSubmitProbe(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	body, call, ok := a.decodeCall(w, r, "submit_probe")
	if !ok {
		return
	}
	var turn uint64
	receipt, err := a.ledger.Execute(r.Context(), call, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		turn, err = c.SubmitProbe(chain, roomID, inputOf(body))
		return err
	})
	if err != nil {
		a.writeError(w, err, receipt.TxID)
		return
	}
	writeJSON(w, http.StatusCreated, callResponse{Receipt: receipt, TurnIndex: &turn})
}

func (a *API) handleClaimTimeout(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	_, call, ok := a.decodeCall(w, r, "claim_timeout")
	if !ok {
		return
	}
	a.execute(w, r, call, func(c *contract.Contract, chain sdk.Chain) error {
		return c.ClaimTimeout(chain, roomID)
	})
}

func (a *API) execute(w http.ResponseWriter, r *http.Request, call Call, fn CallFunc) {
	receipt, err := a.ledger.Execute(r.Context(), call, fn)
	if err != nil {
		a.writeError(w, err, receipt.TxID)
		return
	}
	writeJSON(w, http.StatusOK, callResponse{Receipt: receipt})
}

func (a *API) decodeCall(w http.ResponseWriter, r *http.Request, entrypoint string) (callBody, Call, bool) {
	var body callBody
	sender := sdk.Address(r.Header.Get(SenderHeader))
	if sender == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + SenderHeader + " header"})
		return body, Call{}, false
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "decode body: " + err.Error()})
			return body, Call{}, false
		}
	}
	call := Call{Entrypoint: entrypoint, Sender: sender}
	if body.Allowance != nil {
		call.Intents = []sdk.Intent{{
			Type: "transfer.allow",
			Args: map[string]string{"limit": body.Allowance.Limit, "token": body.Allowance.Token},
		}}
	}
	return body, call, true
}

func inputOf(body callBody) contract.SealedInput {
	if body.Input == nil {
		return contract.SealedInput{}
	}
	return *body.Input
}

// ---------- queries ----------

func (a *API) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	var room *contract.Room
	a.view(w, r, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		room, err = c.GetRoom(chain, roomID)
		return err
	}, func() any { return room })
}

func (a *API) handleRoomCount(w http.ResponseWriter, r *http.Request) {
	var n uint64
	a.view(w, r, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		n, err = c.RoomCount(chain)
		return err
	}, func() any { return map[string]uint64{"count": n} })
}

func (a *API) handleGetProbe(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	n, ok := uintParam(w, r, "n")
	if !ok {
		return
	}
	var p *contract.Probe
	a.view(w, r, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		p, err = c.GetProbe(chain, roomID, n)
		return err
	}, func() any { return p })
}

func (a *API) handleLastProbe(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	var p *contract.Probe
	a.view(w, r, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		p, err = c.LastProbe(chain, roomID)
		return err
	}, func() any { return p })
}

func (a *API) handleIsPlayerTurn(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	addr := chi.URLParam(r, "addr")
	var turn bool
	a.view(w, r, func(c *contract.Contract, chain sdk.Chain) error {
		turn = c.IsPlayerTurn(chain, roomID, addr)
		return nil
	}, func() any { return map[string]bool{"turn": turn} })
}

func (a *API) handleGetVault(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	owner := r.Header.Get(SenderHeader)
	if owner == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + SenderHeader + " header"})
		return
	}
	var v contract.Vault
	a.view(w, r, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		v, err = c.GetVault(chain, roomID, owner)
		return err
	}, func() any { return map[string]contract.Vault{"vault": v} })
}

func (a *API) handleWinCount(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	var n uint64
	a.view(w, r, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		n, err = c.WinCount(chain, addr)
		return err
	}, func() any { return map[string]uint64{"wins": n} })
}

type disclosureView struct {
	Request *contract.DisclosureRequest `json:"request,omitempty"`
	Status  string                      `json:"status"`
	Error   string                      `json:"error,omitempty"`
}

func (a *API) handleGetDisclosure(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "requestID")
	if !ok {
		return
	}
	entry, err := a.store.GetOutboxEntry(r.Context(), id)
	if err != nil {
		a.writeError(w, err, "")
		return
	}
	out := disclosureView{Status: entry.Status, Error: entry.DeliveryError}
	a.view(w, r, func(c *contract.Contract, chain sdk.Chain) error {
		var err error
		out.Request, err = c.GetDisclosureRequest(chain, id)
		return err
	}, func() any { return out })
}

func (a *API) handleRedeliver(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "requestID")
	if !ok {
		return
	}
	if err := a.ledger.Redeliver(r.Context(), id); err != nil {
		a.writeError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	roomID, ok := uintParam(w, r, "roomID")
	if !ok {
		return
	}
	after, err := queryInt(r, "after", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 || limit > 1000 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 1000"})
		return
	}
	events, err := a.store.RoomEvents(r.Context(), roomID, after, int(limit))
	if err != nil {
		a.writeError(w, err, "")
		return
	}
	type eventView struct {
		Seq   int64           `json:"seq"`
		TxID  string          `json:"txId"`
		Event json.RawMessage `json:"event"`
	}
	out := make([]eventView, len(events))
	for i, ev := range events {
		out[i] = eventView{Seq: ev.Seq, TxID: ev.TxID, Event: json.RawMessage(ev.Payload)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.store.GetTransaction(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		a.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handlePublicKeys(w http.ResponseWriter, _ *http.Request) {
	text, err := a.engine.PublicKeys().MarshalText()
	if err != nil {
		a.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"keys": string(text)})
}

// handleDecrypt returns a value to an identity its ACL names, or to anyone
// once it is public.
func (a *API) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	who := sdk.Address(r.Header.Get(SenderHeader))
	kind, value, err := a.engine.Decrypt(sdk.Handle(chi.URLParam(r, "handle")), who)
	if err != nil {
		a.writeError(w, err, "")
		return
	}
	out := map[string]any{"kind": kind.String()}
	switch kind {
	case sdk.KindAddress:
		out["value"] = string(value)
	default:
		out["value"] = value[0]
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr := sdk.Address(chi.URLParam(r, "addr"))
	asset := sdk.Asset(chi.URLParam(r, "asset"))
	bal, err := a.ledger.Balance(r.Context(), addr, asset)
	if err != nil {
		a.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": contract.FormatAmount(bal)})
}

func (a *API) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if !a.faucet {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "faucet disabled"})
		return
	}
	var body struct {
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decode body: " + err.Error()})
		return
	}
	amount, err := contract.ParseAmount(body.Amount)
	if err != nil || body.Asset == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "asset and amount are required"})
		return
	}
	addr := sdk.Address(chi.URLParam(r, "addr"))
	if err := a.ledger.Credit(r.Context(), addr, sdk.Asset(body.Asset), amount); err != nil {
		a.writeError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) view(w http.ResponseWriter, r *http.Request, fn CallFunc, result func() any) {
	if err := a.ledger.View(r.Context(), fn); err != nil {
		a.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, result())
}

// ---------- encoding ----------

type errorBody struct {
	Error string `json:"error"`
	TxID  string `json:"txId,omitempty"`
}

// statusFor maps an error to the HTTP status it is reported with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, contract.ErrInvalidRoom),
		errors.Is(err, sqlite.ErrNotFound),
		errors.Is(err, sdk.ErrUnknownHandle):
		return http.StatusNotFound
	case errors.Is(err, contract.ErrInvalidInput),
		errors.Is(err, contract.ErrInvalidIndex),
		errors.Is(err, contract.ErrInsufficientWager),
		errors.Is(err, contract.ErrWagerMismatch):
		return http.StatusBadRequest
	case errors.Is(err, contract.ErrProofVerification),
		errors.Is(err, contract.ErrNotAPlayer),
		errors.Is(err, contract.ErrUnauthorizedCanceller),
		errors.Is(err, contract.ErrUnauthorizedClaimant),
		errors.Is(err, sdk.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, contract.ErrTransferFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, contract.ErrWrongPhase),
		errors.Is(err, contract.ErrOwnRoomJoinAttempt),
		errors.Is(err, contract.ErrNotYourTurn),
		errors.Is(err, contract.ErrTimeoutNotReached),
		errors.Is(err, contract.ErrNoProbesYet):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, err error, txID string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), TxID: txID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + name})
		return 0, false
	}
	return v, true
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}
