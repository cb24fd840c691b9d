package httpserver

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/mselser95/reservation-escrow/internal/escrow"
	"github.com/mselser95/reservation-escrow/internal/fees"
	"github.com/mselser95/reservation-escrow/internal/proof"
	"go.uber.org/zap"
)

const maxEventPage = 500

// Engine is the marketplace surface the API drives. *escrow.Engine
// implements it.
type Engine interface {
	List(ctx context.Context, seller common.Address, p proof.Proof, price *big.Int, expiry time.Time) (common.Hash, error)
	CancelListing(ctx context.Context, caller common.Address, listingID common.Hash) error
	ExpireListing(ctx context.Context, caller common.Address, listingID common.Hash) error
	Buy(ctx context.Context, buyer common.Address, listingID common.Hash, coordinationTime time.Time) (common.Hash, error)
	ExecuteCancellation(ctx context.Context, caller common.Address, orderID common.Hash, p proof.Proof) error
	ClaimReservation(ctx context.Context, caller common.Address, orderID common.Hash, p proof.Proof) error
	SettleExpired(ctx context.Context, caller common.Address, orderID common.Hash) error

	Listing(id common.Hash) (*escrow.Listing, error)
	Order(id common.Hash) (*escrow.Order, error)
	Listings(status escrow.ListingStatus) []*escrow.Listing
	OrdersForListing(listingID common.Hash) []*escrow.Order
	Balance(addr common.Address) escrow.Balance
	Credit(addr common.Address, amount *big.Int) error
	Params() escrow.Params
	Fees() *fees.Calculator
	Now() time.Time
	Events() *escrow.EventLog
	DueOrders(now time.Time) []*escrow.Order
	ExpiredListings(now time.Time) []*escrow.Listing
}

// APIHandler serves the marketplace API.
type APIHandler struct {
	engine   Engine
	decimals int
	dev      bool
	logger   *zap.Logger
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(engine Engine, decimals int, development bool, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		engine:   engine,
		decimals: decimals,
		dev:      development,
		logger:   logger,
	}
}

// Routes registers the API routes on r.
func (h *APIHandler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/protocol", h.HandleProtocol)
		r.Get("/fees", h.HandleFees)

		r.Get("/listings", h.HandleListListings)
		r.Post("/listings", h.HandleCreateListing)
		r.Get("/listings/{id}", h.HandleGetListing)
		r.Post("/listings/{id}/cancel", h.HandleCancelListing)
		r.Post("/listings/{id}/expire", h.HandleExpireListing)
		r.Post("/listings/{id}/orders", h.HandleBuy)

		r.Get("/orders/{id}", h.HandleGetOrder)
		r.Post("/orders/{id}/cancellation", h.HandleExecuteCancellation)
		r.Post("/orders/{id}/claim", h.HandleClaimReservation)
		r.Post("/orders/{id}/settle-expired", h.HandleSettleExpired)

		r.Get("/accounts/{address}", h.HandleBalance)
		if h.dev {
			r.Post("/accounts/{address}/faucet", h.HandleFaucet)
		}

		r.Get("/events", h.HandleEvents)
		r.Get("/keeper/due", h.HandleDue)
	})
}

// HandleProtocol handles GET /api/protocol.
func (h *APIHandler) HandleProtocol(w http.ResponseWriter, r *http.Request) {
	p := h.engine.Params()
	h.writeJSON(w, http.StatusOK, ProtocolResponse{
		ListingFeeBps:        p.Fees.ListingFeeBps,
		SuccessFeeBps:        p.Fees.SuccessFeeBps,
		DepositMultiplier:    p.Fees.DepositMultiplier,
		SellerStakeBps:       p.Fees.SellerStakeBps,
		ForfeitureSellerBps:  p.Fees.ForfeitureSellerBps,
		MinLeadTime:          p.Timing.MinLeadTime.String(),
		ClaimWindow:          p.Timing.ClaimWindow.String(),
		EarlyCancelTolerance: p.Timing.EarlyCancelTolerance.String(),
		RelistOnTimeout:      p.RelistOnTimeout,
		Treasury:             p.Treasury.Hex(),
		AmountDecimals:       h.decimals,
		Now:                  formatTime(h.engine.Now()),
	})
}

// HandleFees handles GET /api/fees?price=<amount>.
func (h *APIHandler) HandleFees(w http.ResponseWriter, r *http.Request) {
	price, err := fees.ParseAmount(r.URL.Query().Get("price"), h.decimals)
	if err != nil || price.Sign() <= 0 {
		h.writeError(w, "query parameter price must be a positive amount", http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.quoteResponse(h.engine.Fees().Quote(price)))
}

// HandleListListings handles GET /api/listings[?status=].
func (h *APIHandler) HandleListListings(w http.ResponseWriter, r *http.Request) {
	var status escrow.ListingStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st, ok := escrow.ParseListingStatus(s)
		if !ok {
			h.writeError(w, "unknown listing status", http.StatusBadRequest)
			return
		}
		status = st
	}

	listings := h.engine.Listings(status)
	out := make([]ListingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, h.listingResponse(l, nil))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HandleCreateListing handles POST /api/listings.
func (h *APIHandler) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	body, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	seller, ok := h.authenticate(w, r, body, "seller", req.Seller, true)
	if !ok {
		return
	}
	p, ok := parseProof(req.Proof)
	if !ok {
		h.writeError(w, "proof is required", http.StatusBadRequest)
		return
	}
	price, err := fees.ParseAmount(req.Price, h.decimals)
	if err != nil {
		h.writeError(w, "price: "+err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.engine.List(r.Context(), seller, p, price, req.Expiry)
	if err != nil {
		h.writeEscrowError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, IDResponse{ID: id.Hex()})
}

// HandleGetListing handles GET /api/listings/{id}.
func (h *APIHandler) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathHash(w, r)
	if !ok {
		return
	}
	l, err := h.engine.Listing(id)
	if err != nil {
		h.writeEscrowError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.listingResponse(l, h.engine.OrdersForListing(id)))
}

// HandleCancelListing handles POST /api/listings/{id}/cancel. The request
// must be signed by the seller.
func (h *APIHandler) HandleCancelListing(w http.ResponseWriter, r *http.Request) {
	h.callerAction(w, r, true, h.engine.CancelListing)
}

// HandleExpireListing handles POST /api/listings/{id}/expire.
func (h *APIHandler) HandleExpireListing(w http.ResponseWriter, r *http.Request) {
	h.callerAction(w, r, false, h.engine.ExpireListing)
}

// HandleBuy handles POST /api/listings/{id}/orders.
func (h *APIHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	listingID, ok := h.pathHash(w, r)
	if !ok {
		return
	}
	var req BuyRequest
	body, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	buyer, ok := h.authenticate(w, r, body, "buyer", req.Buyer, true)
	if !ok {
		return
	}

	id, err := h.engine.Buy(r.Context(), buyer, listingID, req.CoordinationTime)
	if err != nil {
		h.writeEscrowError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, IDResponse{ID: id.Hex()})
}

// HandleGetOrder handles GET /api/orders/{id}.
func (h *APIHandler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathHash(w, r)
	if !ok {
		return
	}
	o, err := h.engine.Order(id)
	if err != nil {
		h.writeEscrowError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.orderResponse(o))
}

// HandleExecuteCancellation handles POST /api/orders/{id}/cancellation.
func (h *APIHandler) HandleExecuteCancellation(w http.ResponseWriter, r *http.Request) {
	h.proofAction(w, r, h.engine.ExecuteCancellation)
}

// HandleClaimReservation handles POST /api/orders/{id}/claim.
func (h *APIHandler) HandleClaimReservation(w http.ResponseWriter, r *http.Request) {
	h.proofAction(w, r, h.engine.ClaimReservation)
}

// HandleSettleExpired handles POST /api/orders/{id}/settle-expired.
func (h *APIHandler) HandleSettleExpired(w http.ResponseWriter, r *http.Request) {
	h.callerAction(w, r, false, h.engine.SettleExpired)
}

// HandleBalance handles GET /api/accounts/{address}.
func (h *APIHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		h.writeError(w, "address must be a hex address", http.StatusBadRequest)
		return
	}
	b := h.engine.Balance(addr)
	h.writeJSON(w, http.StatusOK, BalanceResponse{
		Address:   b.Address.Hex(),
		Available: h.amount(b.Available),
		Escrowed:  h.amount(b.Escrowed),
	})
}

// HandleFaucet handles POST /api/accounts/{address}/faucet. Development only.
func (h *APIHandler) HandleFaucet(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		h.writeError(w, "address must be a hex address", http.StatusBadRequest)
		return
	}
	var req FaucetRequest
	if _, ok := h.decode(w, r, &req); !ok {
		return
	}
	amount, err := fees.ParseAmount(req.Amount, h.decimals)
	if err != nil {
		h.writeError(w, "amount: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Credit(addr, amount)
	if err != nil {
		h.writeEscrowError(w, err)
		return
	}
	h.HandleBalance(w, r)
}

// HandleEvents handles GET /api/events?since=<seq>&limit=<n>.
func (h *APIHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since uint64
	if s := q.Get("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.writeError(w, "since must be a sequence number", http.StatusBadRequest)
			return
		}
		since = v
	}
	limit := maxEventPage
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			h.writeError(w, "limit must be positive", http.StatusBadRequest)
			return
		}
		if v < limit {
			limit = v
		}
	}

	events := h.engine.Events().Since(since, limit)
	next := since
	if len(events) > 0 {
		next = events[len(events)-1].Sequence
	}
	h.writeJSON(w, http.StatusOK, EventsResponse{Events: events, Next: next})
}

// HandleDue handles GET /api/keeper/due.
func (h *APIHandler) HandleDue(w http.ResponseWriter, r *http.Request) {
	now := h.engine.Now()
	resp := DueResponse{Orders: []string{}, Listings: []string{}}
	for _, o := range h.engine.DueOrders(now) {
		resp.Orders = append(resp.Orders, o.ID.Hex())
	}
	for _, l := range h.engine.ExpiredListings(now) {
		resp.Listings = append(resp.Listings, l.ID.Hex())
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// callerAction runs an action that takes only the acting account. signed
// marks actions whose caller carries authority.
func (h *APIHandler) callerAction(w http.ResponseWriter, r *http.Request, signed bool,
	action func(context.Context, common.Address, common.Hash) error,
) {
	id, ok := h.pathHash(w, r)
	if !ok {
		return
	}
	var req CallerRequest
	body, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	caller, ok := h.authenticate(w, r, body, "caller", req.Caller, signed)
	if !ok {
		return
	}

	err := action(r.Context(), caller, id)
	if err != nil {
		h.writeEscrowError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, IDResponse{ID: id.Hex()})
}

func (h *APIHandler) proofAction(w http.ResponseWriter, r *http.Request,
	action func(context.Context, common.Address, common.Hash, proof.Proof) error,
) {
	id, ok := h.pathHash(w, r)
	if !ok {
		return
	}
	var req ProofRequest
	body, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	// The proof carries the authority; the caller is recorded on the event.
	caller, ok := h.authenticate(w, r, body, "caller", req.Caller, false)
	if !ok {
		return
	}
	p, ok := parseProof(req.Proof)
	if !ok {
		h.writeError(w, "proof is required", http.StatusBadRequest)
		return
	}

	err := action(r.Context(), caller, id, p)
	if err != nil {
		h.writeEscrowError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, IDResponse{ID: id.Hex()})
}

func (h *APIHandler) pathHash(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	id, ok := parseHash(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, "id must be a 32-byte hex hash", http.StatusBadRequest)
		return common.Hash{}, false
	}
	return id, true
}

// decode reads the body into v and returns the raw bytes for signature
// checks.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	err = json.Unmarshal(body, v)
	if err != nil {
		h.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return body, true
}
