package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/service"
)

// OrderHandler handles HTTP requests for order and market-wide endpoints.
type OrderHandler struct {
	svc *service.MarketService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc *service.MarketService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// submitOrderRequest is the JSON request body for POST /orders.
type submitOrderRequest struct {
	AgentID        uint64           `json:"agent_id"`
	CompanyID      uint64           `json:"company_id"`
	Side           string           `json:"side"`
	Price          decimal.Decimal  `json:"price"`
	Deviation      *decimal.Decimal `json:"deviation"`
	Quantity       uint64           `json:"quantity"`
	PreferIssuance bool             `json:"prefer_issuance"`
}

// submitOrderResponse is the JSON response for POST /orders.
type submitOrderResponse struct {
	Status string `json:"status"`
	Queued int    `json:"queued"`
}

// statusResponse is the JSON response for GET /status.
type statusResponse struct {
	Tick           uint64          `json:"tick"`
	Agents         int             `json:"agents"`
	Companies      int             `json:"companies"`
	OpenBuyOffers  int             `json:"open_buy_offers"`
	OpenSellOffers int             `json:"open_sell_offers"`
	OpenLots       int             `json:"open_lots"`
	PendingRetries int             `json:"pending_retries"`
	QueuedOrders   int             `json:"queued_orders"`
	Transactions   uint64          `json:"transactions"`
	TotalCash      decimal.Decimal `json:"total_cash"`
	EscrowedCash   decimal.Decimal `json:"escrowed_cash"`
}

// SubmitOrder handles POST /orders. The order runs on the next tick.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := h.svc.SubmitOrder(service.SubmitOrderRequest{
		AgentID:        domain.AgentID(req.AgentID),
		CompanyID:      domain.CompanyID(req.CompanyID),
		Side:           req.Side,
		Price:          req.Price,
		Deviation:      req.Deviation,
		Quantity:       req.Quantity,
		PreferIssuance: req.PreferIssuance,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, submitOrderResponse{Status: resp.Status, Queued: resp.Queued})
}

// ListTransactions handles GET /transactions.
func (h *OrderHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", service.DefaultTransactionLimit)
	if err != nil {
		mapError(w, err)
		return
	}

	var company *domain.CompanyID
	if raw := r.URL.Query().Get("company_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			mapError(w, &domain.ValidationError{Message: "company_id must be a non-negative integer"})
			return
		}
		c := domain.CompanyID(id)
		company = &c
	}

	txs, err := h.svc.ListTransactions(company, limit)
	if err != nil {
		mapError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// Status handles GET /status.
func (h *OrderHandler) Status(w http.ResponseWriter, _ *http.Request) {
	st := h.svc.Status()
	WriteJSON(w, http.StatusOK, statusResponse{
		Tick:           st.Tick,
		Agents:         st.Agents,
		Companies:      st.Companies,
		OpenBuyOffers:  st.OpenBuyOffers,
		OpenSellOffers: st.OpenSellOffers,
		OpenLots:       st.OpenLots,
		PendingRetries: st.PendingRetries,
		QueuedOrders:   st.QueuedOrders,
		Transactions:   st.Transactions,
		TotalCash:      st.TotalCash,
		EscrowedCash:   st.EscrowedCash,
	})
}
