package httpserver

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	json "github.com/goccy/go-json"
	"github.com/mselser95/reservation-escrow/internal/escrow"
	"github.com/mselser95/reservation-escrow/internal/fees"
	"github.com/mselser95/reservation-escrow/internal/proof"
)

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Code     string `json:"code,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

// ListRequest is the body of POST /api/listings. The request must be signed
// by the seller; Seller, when set, must name the signer.
type ListRequest struct {
	Seller string          `json:"seller,omitempty"`
	Proof  json.RawMessage `json:"proof"`
	Price  string          `json:"price"`
	Expiry time.Time       `json:"expiry"`
}

// BuyRequest is the body of POST /api/listings/{id}/orders, signed by the
// buyer.
type BuyRequest struct {
	Buyer            string    `json:"buyer,omitempty"`
	CoordinationTime time.Time `json:"coordination_time"`
}

// CallerRequest is the body of actions that carry no other input. Signed
// requests act as the signer. Permissionless actions also accept an unsigned
// caller, which is only recorded on the event.
type CallerRequest struct {
	Caller string `json:"caller,omitempty"`
}

// ProofRequest is the body of cancellation and claim submissions.
type ProofRequest struct {
	Caller string          `json:"caller,omitempty"`
	Proof  json.RawMessage `json:"proof"`
}

// FaucetRequest is the body of POST /api/accounts/{address}/faucet.
type FaucetRequest struct {
	Amount string `json:"amount"`
}

// IDResponse returns the id of a created entity.
type IDResponse struct {
	ID string `json:"id"`
}

// ListingResponse is the public view of a listing.
type ListingResponse struct {
	ID              string   `json:"id"`
	Seller          string   `json:"seller"`
	ReservationHash string   `json:"reservation_hash"`
	ContextHash     string   `json:"context_hash"`
	Platform        string   `json:"platform"`
	Venue           string   `json:"venue"`
	SlotTime        string   `json:"slot_time,omitempty"`
	PartySize       int      `json:"party_size"`
	Price           string   `json:"price"`
	EscrowAmount    string   `json:"escrow_amount"`
	ListingFee      string   `json:"listing_fee"`
	Expiry          string   `json:"expiry"`
	Status          string   `json:"status"`
	ActiveOrderID   string   `json:"active_order_id,omitempty"`
	Orders          []string `json:"orders,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

// OrderResponse is the public view of an order.
type OrderResponse struct {
	ID               string `json:"id"`
	Buyer            string `json:"buyer"`
	ListingID        string `json:"listing_id"`
	PaymentAmount    string `json:"payment_amount"`
	DepositAmount    string `json:"deposit_amount"`
	CoordinationTime string `json:"coordination_time"`
	ClaimDeadline    string `json:"claim_deadline"`
	Status           string `json:"status"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
	SettledAt        string `json:"settled_at,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// BalanceResponse is an account's ledger position.
type BalanceResponse struct {
	Address   string `json:"address"`
	Available string `json:"available"`
	Escrowed  string `json:"escrowed"`
}

// QuoteResponse is the fee breakdown for a price.
type QuoteResponse struct {
	Price        string `json:"price"`
	ListingFee   string `json:"listing_fee"`
	SuccessFee   string `json:"success_fee"`
	BuyerDeposit string `json:"buyer_deposit"`
	SellerStake  string `json:"seller_stake"`
	SellerPayout string `json:"seller_payout"`
	SellerNet    string `json:"seller_net"`
}

// ProtocolResponse describes the protocol constants.
type ProtocolResponse struct {
	ListingFeeBps        uint32 `json:"listing_fee_bps"`
	SuccessFeeBps        uint32 `json:"success_fee_bps"`
	DepositMultiplier    uint32 `json:"deposit_multiplier"`
	SellerStakeBps       uint32 `json:"seller_stake_bps"`
	ForfeitureSellerBps  uint32 `json:"forfeiture_seller_bps"`
	MinLeadTime          string `json:"min_lead_time"`
	ClaimWindow          string `json:"claim_window"`
	EarlyCancelTolerance string `json:"early_cancel_tolerance"`
	RelistOnTimeout      bool   `json:"relist_on_timeout"`
	Treasury             string `json:"treasury"`
	AmountDecimals       int    `json:"amount_decimals"`
	Now                  string `json:"now"`
}

// EventsResponse is a page of the event log.
type EventsResponse struct {
	Events []escrow.Event `json:"events"`
	Next   uint64         `json:"next"`
}

// DueResponse lists entities the keeper may finalize.
type DueResponse struct {
	Orders   []string `json:"orders"`
	Listings []string `json:"listings"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (h *APIHandler) amount(v *big.Int) string {
	return fees.FormatAmount(v, h.decimals)
}

func (h *APIHandler) listingResponse(l *escrow.Listing, orders []*escrow.Order) ListingResponse {
	resp := ListingResponse{
		ID:              l.ID.Hex(),
		Seller:          l.Seller.Hex(),
		ReservationHash: l.ReservationHash.Hex(),
		ContextHash:     l.ContextHash.Hex(),
		Platform:        string(l.Platform),
		Venue:           l.Venue,
		SlotTime:        formatTime(l.SlotTime),
		PartySize:       l.PartySize,
		Price:           h.amount(l.Price),
		EscrowAmount:    h.amount(l.EscrowAmount),
		ListingFee:      h.amount(l.ListingFee),
		Expiry:          formatTime(l.Expiry),
		Status:          string(l.Status),
		CreatedAt:       formatTime(l.CreatedAt),
	}
	if l.ActiveOrderID != (common.Hash{}) {
		resp.ActiveOrderID = l.ActiveOrderID.Hex()
	}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, o.ID.Hex())
	}
	return resp
}

func (h *APIHandler) orderResponse(o *escrow.Order) OrderResponse {
	return OrderResponse{
		ID:               o.ID.Hex(),
		Buyer:            o.Buyer.Hex(),
		ListingID:        o.ListingID.Hex(),
		PaymentAmount:    h.amount(o.PaymentAmount),
		DepositAmount:    h.amount(o.DepositAmount),
		CoordinationTime: formatTime(o.CoordinationTime),
		ClaimDeadline:    formatTime(o.ClaimDeadline),
		Status:           string(o.ViewStatus(h.engine.Now(), h.engine.Params().Timing.EarlyCancelTolerance)),
		CancelledAt:      formatTime(o.CancelledAt),
		SettledAt:        formatTime(o.SettledAt),
		CreatedAt:        formatTime(o.CreatedAt),
	}
}

func (h *APIHandler) quoteResponse(q fees.Quote) QuoteResponse {
	return QuoteResponse{
		Price:        h.amount(q.Price),
		ListingFee:   h.amount(q.ListingFee),
		SuccessFee:   h.amount(q.SuccessFee),
		BuyerDeposit: h.amount(q.BuyerDeposit),
		SellerStake:  h.amount(q.SellerStake),
		SellerPayout: h.amount(q.SellerPayout),
		SellerNet:    h.amount(q.SellerNet),
	}
}

// parseHash parses a 32-byte 0x-prefixed id.
func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseProof accepts the envelope either as a JSON object or as a JSON
// string holding it.
func parseProof(raw json.RawMessage) (proof.Proof, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, false
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if json.Unmarshal(raw, &s) != nil || s == "" {
			return nil, false
		}
		return proof.Proof(s), true
	}
	return proof.Proof(trimmed), true
}
