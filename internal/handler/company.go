package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/engine"
	"github.com/efreitasn/stocksim/internal/service"
)

// CompanyHandler handles HTTP requests for company endpoints.
type CompanyHandler struct {
	svc *service.MarketService
}

// NewCompanyHandler creates a new CompanyHandler.
func NewCompanyHandler(svc *service.MarketService) *CompanyHandler {
	return &CompanyHandler{svc: svc}
}

// priceResponse is the JSON response for GET /companies/{company_id}/price.
type priceResponse struct {
	CompanyID domain.CompanyID `json:"company_id"`
	domain.MarketValue
	Movement     decimal.Decimal `json:"movement"`
	PendingFills int             `json:"pending_fills"`
	Tick         uint64          `json:"tick"`
}

// bookLevelResponse is a single price level in the book response.
type bookLevelResponse struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity uint64          `json:"total_quantity"`
	OfferCount    int             `json:"offer_count"`
}

// bookResponse is the JSON response for GET /companies/{company_id}/book.
type bookResponse struct {
	CompanyID  domain.CompanyID    `json:"company_id"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     *decimal.Decimal    `json:"spread"`
	MinPrice   *decimal.Decimal    `json:"min_price"`
	MaxPrice   *decimal.Decimal    `json:"max_price"`
	BuyOffers  int                 `json:"buy_offers"`
	SellOffers int                 `json:"sell_offers"`
	Options    int                 `json:"options"`
	Tick       uint64              `json:"tick"`
}

// lotsResponse is the JSON response for GET /companies/{company_id}/lots.
type lotsResponse struct {
	CompanyID    domain.CompanyID `json:"company_id"`
	Open         bool             `json:"open"`
	StrikePrice  decimal.Decimal  `json:"strike_price"`
	NumberOfLots uint64           `json:"number_of_lots"`
	LotSize      uint64           `json:"lot_size"`
	TotalBets    uint64           `json:"total_bets"`
	Bettors      int              `json:"bettors"`
}

// GetPrice handles GET /companies/{company_id}/price.
func (h *CompanyHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "company_id")
	if err != nil {
		mapError(w, err)
		return
	}

	price, err := h.svc.GetPrice(domain.CompanyID(id))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, priceResponse{
		CompanyID:    price.CompanyID,
		MarketValue:  price.Value,
		Movement:     price.Movement,
		PendingFills: price.PendingFills,
		Tick:         price.Tick,
	})
}

// GetBook handles GET /companies/{company_id}/book.
func (h *CompanyHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "company_id")
	if err != nil {
		mapError(w, err)
		return
	}
	depth, err := intQuery(r, "depth", service.DefaultBookDepth)
	if err != nil {
		mapError(w, err)
		return
	}

	book, err := h.svc.GetBook(domain.CompanyID(id), depth)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		CompanyID:  book.CompanyID,
		Bids:       levels(book.Bids),
		Asks:       levels(book.Asks),
		Spread:     book.Spread,
		MinPrice:   book.MinPrice,
		MaxPrice:   book.MaxPrice,
		BuyOffers:  book.BuyOffers,
		SellOffers: book.SellOffers,
		Options:    book.Options,
		Tick:       book.Tick,
	})
}

func levels(in []engine.PriceLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(in))
	for i, pl := range in {
		out[i] = bookLevelResponse{
			Price:         pl.Price,
			TotalQuantity: pl.TotalQuantity,
			OfferCount:    pl.OfferCount,
		}
	}
	return out
}

// GetLots handles GET /companies/{company_id}/lots.
func (h *CompanyHandler) GetLots(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "company_id")
	if err != nil {
		mapError(w, err)
		return
	}

	lots, err := h.svc.GetLots(domain.CompanyID(id))
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, lotsResponse{
		CompanyID:    lots.CompanyID,
		Open:         lots.Open,
		StrikePrice:  lots.StrikePrice,
		NumberOfLots: lots.NumberOfLots,
		LotSize:      lots.LotSize,
		TotalBets:    lots.TotalBets,
		Bettors:      lots.Bettors,
	})
}
