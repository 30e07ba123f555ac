package http

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"fluid-presale/internal/application/port"
	"fluid-presale/internal/domain/entity"
)

// SessionHandler serves the per-session purchase flow.
type SessionHandler struct {
	sessions port.SessionManager
	logger   *zap.Logger
}

func NewSessionHandler(sessions port.SessionManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger.Named("SessionHandler"),
	}
}

type sessionResponse struct {
	ID       string               `json:"id"`
	Purchase entity.PurchaseState `json:"purchase"`
	Raise    entity.RaiseView     `json:"raise"`
}

type walletRequest struct {
	Address string `json:"address"`
}

type intentRequest struct {
	Amount   *string `json:"amount"`
	Currency *string `json:"currency"`
}

type quoteResponse struct {
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Receivable string `json:"receivable"`
}

type intentResponse struct {
	Purchase entity.PurchaseState `json:"purchase"`
	Quote    string               `json:"quote"`
}

// session resolves the {sessionId} path parameter, writing the error response on failure.
func (h *SessionHandler) session(ctx *fasthttp.RequestCtx) (port.Session, bool) {
	id, _ := ctx.UserValue("sessionId").(string)
	lookupCtx, cancel := requestContext(requestTimeout)
	defer cancel()
	session, err := h.sessions.Get(lookupCtx, id)
	if err != nil {
		writeError(ctx, h.logger, err)
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) describe(session port.Session) sessionResponse {
	return sessionResponse{
		ID:       session.ID(),
		Purchase: session.Purchase().State(),
		Raise:    session.Progress().State().View(),
	}
}

// CreateSession starts a new purchase session.
func (h *SessionHandler) CreateSession(ctx *fasthttp.RequestCtx) {
	createCtx, cancel := requestContext(requestTimeout)
	defer cancel()
	session, err := h.sessions.Create(createCtx)
	if err != nil {
		writeError(ctx, h.logger, err)
		return
	}
	writeJSON(ctx, h.logger, fasthttp.StatusCreated, h.describe(session))
}

// GetSession returns the purchase and raise state of a session.
func (h *SessionHandler) GetSession(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	writeJSON(ctx, h.logger, fasthttp.StatusOK, h.describe(session))
}

// DeleteSession ends a session and releases its timers.
func (h *SessionHandler) DeleteSession(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("sessionId").(string)
	closeCtx, cancel := requestContext(requestTimeout)
	defer cancel()
	if err := h.sessions.Close(closeCtx, id); err != nil {
		writeError(ctx, h.logger, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

// ConnectWallet attaches the paying wallet to the session.
func (h *SessionHandler) ConnectWallet(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	var req walletRequest
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, h.logger, err)
		return
	}
	if err := session.Purchase().ConnectWallet(req.Address); err != nil {
		writeError(ctx, h.logger, err)
		return
	}
	writeJSON(ctx, h.logger, fasthttp.StatusOK, session.Purchase().State())
}

// DisconnectWallet detaches the wallet.
func (h *SessionHandler) DisconnectWallet(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	session.Purchase().DisconnectWallet()
	writeJSON(ctx, h.logger, fasthttp.StatusOK, session.Purchase().State())
}

// UpdateIntent sets the amount and/or currency and returns the new quote.
func (h *SessionHandler) UpdateIntent(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	var req intentRequest
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, h.logger, err)
		return
	}
	purchase := session.Purchase()
	if req.Currency != nil {
		if err := purchase.SelectCurrency(*req.Currency); err != nil {
			writeError(ctx, h.logger, err)
			return
		}
	}
	if req.Amount != nil {
		purchase.SetAmount(*req.Amount)
	}
	writeJSON(ctx, h.logger, fasthttp.StatusOK, intentResponse{Purchase: purchase.State(), Quote: purchase.Quote()})
}

// GetQuote returns the receivable token amount for the current intent.
func (h *SessionHandler) GetQuote(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	state := session.Purchase().State()
	writeJSON(ctx, h.logger, fasthttp.StatusOK, quoteResponse{
		Amount:     state.Intent.Amount,
		Currency:   state.Intent.CurrencyID,
		Receivable: session.Purchase().Quote(),
	})
}

// SubmitPurchase starts a purchase. The attempt is bound to the session, not the
// request, and its progress is observed through GetPurchase.
func (h *SessionHandler) SubmitPurchase(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	result, err := session.Purchase().Submit(session.Context())
	if err != nil {
		writeError(ctx, h.logger, err)
		return
	}
	if result.Redirect != nil {
		writeJSON(ctx, h.logger, fasthttp.StatusOK, result.Redirect)
		return
	}
	if result.Outcome != nil {
		go h.logOutcome(session.ID(), result.Outcome)
	}
	writeJSON(ctx, h.logger, fasthttp.StatusAccepted, session.Purchase().State())
}

func (h *SessionHandler) logOutcome(sessionID string, outcome <-chan entity.AttemptOutcome) {
	res, ok := <-outcome
	if !ok {
		return
	}
	if res.Err != nil {
		h.logger.Info("Purchase attempt finished with error", zap.String("sessionId", sessionID), zap.Error(res.Err))
		return
	}
	h.logger.Info("Purchase attempt succeeded", zap.String("sessionId", sessionID), zap.String("txHash", res.TxHash))
}

// GetPurchase returns the purchase state with the buy affordance.
func (h *SessionHandler) GetPurchase(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	writeJSON(ctx, h.logger, fasthttp.StatusOK, session.Purchase().State())
}

// DismissPurchase returns a finished attempt to idle.
func (h *SessionHandler) DismissPurchase(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	session.Purchase().Dismiss()
	writeJSON(ctx, h.logger, fasthttp.StatusOK, session.Purchase().State())
}

// GetRaise returns the session's raise progress and countdown.
func (h *SessionHandler) GetRaise(ctx *fasthttp.RequestCtx) {
	session, ok := h.session(ctx)
	if !ok {
		return
	}
	writeJSON(ctx, h.logger, fasthttp.StatusOK, session.Progress().State().View())
}
