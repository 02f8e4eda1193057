package handler

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/service"
)

// AgentHandler handles HTTP requests for agent endpoints.
type AgentHandler struct {
	svc *service.MarketService
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(svc *service.MarketService) *AgentHandler {
	return &AgentHandler{svc: svc}
}

type holdingEntry struct {
	CompanyID domain.CompanyID `json:"company_id"`
	Shares    uint64           `json:"shares"`
}

// balanceResponse is the JSON response for GET /agents/{agent_id}/balance.
type balanceResponse struct {
	AgentID  domain.AgentID  `json:"agent_id"`
	Balance  decimal.Decimal `json:"balance"`
	Holdings []holdingEntry  `json:"holdings"`
}

// holdingResponse is the JSON response for
// GET /agents/{agent_id}/holdings/{company_id}.
type holdingResponse struct {
	AgentID   domain.AgentID   `json:"agent_id"`
	CompanyID domain.CompanyID `json:"company_id"`
	Shares    uint64           `json:"shares"`
}

// GetBalance handles GET /agents/{agent_id}/balance.
func (h *AgentHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "agent_id")
	if err != nil {
		mapError(w, err)
		return
	}

	bal, err := h.svc.GetBalance(domain.AgentID(id))
	if err != nil {
		mapError(w, err)
		return
	}

	resp := balanceResponse{
		AgentID:  bal.AgentID,
		Balance:  bal.Balance,
		Holdings: make([]holdingEntry, 0, len(bal.Holdings)),
	}
	for c, n := range bal.Holdings {
		resp.Holdings = append(resp.Holdings, holdingEntry{CompanyID: c, Shares: n})
	}
	slices.SortFunc(resp.Holdings, func(a, b holdingEntry) int {
		return cmp.Compare(a.CompanyID, b.CompanyID)
	})

	WriteJSON(w, http.StatusOK, resp)
}

// GetHolding handles GET /agents/{agent_id}/holdings/{company_id}.
func (h *AgentHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	agent, err := idParam(r, "agent_id")
	if err != nil {
		mapError(w, err)
		return
	}
	company, err := idParam(r, "company_id")
	if err != nil {
		mapError(w, err)
		return
	}

	hold, err := h.svc.GetHolding(domain.AgentID(agent), domain.CompanyID(company))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, holdingResponse{
		AgentID:   hold.AgentID,
		CompanyID: hold.CompanyID,
		Shares:    hold.Shares,
	})
}
