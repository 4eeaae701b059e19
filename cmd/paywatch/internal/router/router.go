package router

import (
	"errors"
	"net/http"

	"github.com/RogueTeam/paywatch/receipts"
	"github.com/RogueTeam/paywatch/wallets"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Exposes the receipt ledger over HTTP
type Router struct {
	// Receipt ledger
	Receipts *receipts.Controller
	// Queried for the balance. Nil answers 503
	Wallet wallets.Wallet
	// Backend units per displayed unit
	AmountUnit uint64
	// Base Gin Group to use for routing
	Base gin.IRoutes
}

const (
	IdParam            = "id"
	ReceiptsPath       = "/receipts"
	TrackPath          = ReceiptsPath + "/track"
	ReceiptsPathWithId = ReceiptsPath + "/:" + IdParam
	BalancePath        = "/balance"
)

func abort(ctx *gin.Context, code int, err error) {
	ctx.Error(err)
	ctx.AbortWithStatusJSON(code, Error{Error: err.Error()})
}

func ledgerStatus(err error) (code int) {
	switch {
	case errors.Is(err, receipts.ErrReceiptNotFound):
		return http.StatusNotFound
	case errors.Is(err, receipts.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, wallets.ErrNotConnected), errors.Is(err, receipts.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) respond(ctx *gin.Context, code int, receipt *receipts.Receipt) {
	out := ReceiptFromLedger(receipt, r.AmountUnit)
	ctx.JSON(code, &out)
}

func (r *Router) createReceipt(ctx *gin.Context) {
	var receive Receive
	err := ctx.ShouldBindJSON(&receive)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	amount, err := receive.Amount.ToUint64(r.AmountUnit)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	receipt, err := r.Receipts.Receive(ctx, receipts.Receive{
		Amount:      amount,
		Description: receive.Description,
	})
	if err != nil {
		abort(ctx, ledgerStatus(err), err)
		return
	}
	r.respond(ctx, http.StatusCreated, &receipt)
}

func (r *Router) trackReceipt(ctx *gin.Context) {
	var track Track
	err := ctx.ShouldBindJSON(&track)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	req := receipts.Track{Token: track.Token}
	if track.Amount != nil {
		req.Amount, err = track.Amount.ToUint64(r.AmountUnit)
		if err != nil {
			abort(ctx, http.StatusBadRequest, err)
			return
		}
	}
	receipt, err := r.Receipts.Track(ctx, req)
	if err != nil {
		abort(ctx, ledgerStatus(err), err)
		return
	}
	r.respond(ctx, http.StatusCreated, &receipt)
}

func (r *Router) parseId(ctx *gin.Context) (id uuid.UUID, ok bool) {
	id, err := uuid.Parse(ctx.Param(IdParam))
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return id, false
	}
	return id, true
}

func (r *Router) receiptStatus(ctx *gin.Context) {
	id, ok := r.parseId(ctx)
	if !ok {
		return
	}

	receipt, err := r.Receipts.Query(id)
	if err != nil {
		abort(ctx, ledgerStatus(err), err)
		return
	}
	r.respond(ctx, http.StatusOK, &receipt)
}

func (r *Router) cancelReceipt(ctx *gin.Context) {
	id, ok := r.parseId(ctx)
	if !ok {
		return
	}

	receipt, err := r.Receipts.Cancel(id)
	if err != nil {
		abort(ctx, ledgerStatus(err), err)
		return
	}
	r.respond(ctx, http.StatusOK, &receipt)
}

func (r *Router) balance(ctx *gin.Context) {
	if r.Wallet == nil {
		abort(ctx, http.StatusServiceUnavailable, wallets.ErrNotConnected)
		return
	}

	balance, err := r.Wallet.Balance(ctx)
	if err != nil {
		abort(ctx, ledgerStatus(err), err)
		return
	}

	var out Balance
	out.Balance.FromUint64(balance.Amount, r.AmountUnit)
	ctx.JSON(http.StatusOK, &out)
}

// Register routes in the Gin engine
func (r *Router) Register() {
	r.Base.POST(ReceiptsPath, r.createReceipt)
	r.Base.POST(TrackPath, r.trackReceipt)
	r.Base.GET(ReceiptsPathWithId, r.receiptStatus)
	r.Base.DELETE(ReceiptsPathWithId, r.cancelReceipt)
	r.Base.GET(BalancePath, r.balance)
}
