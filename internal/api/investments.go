package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/invest"
	"github.com/brewit-money/wallet/internal/uniswap"
	"github.com/brewit-money/wallet/types"
)

type SubmitRequest struct {
	Signature hexutil.Bytes `json:"signature" validate:"required"`
}

// PartialFailure is returned with 202 when the job is on chain but its
// trigger is not registered yet.
type PartialFailure struct {
	invest.Result
	RetryTaskID string `json:"retry_task_id,omitempty"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage(msg))
}

func chainIDParam(c echo.Context) (uint64, error) {
	raw := c.QueryParam("chainId")
	if raw == "" {
		return 0, errors.New("chainId is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("chainId must be a positive integer")
	}
	return id, nil
}

func addressParam(c echo.Context, name string) (common.Address, error) {
	raw := c.QueryParam(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New(name + " must be a hex address")
	}
	return common.HexToAddress(raw), nil
}

// respondError maps orchestration errors to status codes.
func (s *Server) respondError(c echo.Context, err error) error {
	var vErr *invest.ValidationError
	var subErr *invest.SubmissionError
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithDetails(vErr.Error(), vErr.Field))
	case errors.Is(err, invest.ErrOperationNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponseWithMessage(MsgOperationNotFound))
	case errors.Is(err, invest.ErrInvestmentNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponseWithMessage(MsgInvestmentNotFound))
	case errors.Is(err, invest.ErrNotScheduled):
		return c.JSON(http.StatusConflict, NewErrorResponseWithMessage(MsgNotScheduled))
	case errors.Is(err, invest.ErrInvalidSignature):
		return c.JSON(http.StatusForbidden, NewErrorResponseWithMessage(MsgInvalidSignature))
	case errors.Is(err, invest.ErrQuoterUnavailable):
		return c.JSON(http.StatusNotImplemented, NewErrorResponseWithMessage(MsgQuoterUnavailable))
	case errors.As(err, &subErr):
		return c.JSON(http.StatusBadGateway, NewErrorResponseWithDetails(MsgSubmissionFailed, subErr.Error()))
	}
	s.logger.WithField("path", c.Path()).Errorf("request failed: %v", err)
	return c.JSON(http.StatusInternalServerError, NewErrorResponseWithMessage(MsgInternalError))
}

func (s *Server) ListInvestments(c echo.Context) error {
	chainID, err := chainIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	account, err := addressParam(c, "account")
	if err != nil {
		return badRequest(c, err.Error())
	}
	list, err := s.investments.List(c.Request().Context(), chainID, account)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, list))
}

func (s *Server) PrepareInvestment(c echo.Context) error {
	var req types.InvestmentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, MsgInvalidRequest)
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithDetails(MsgInvalidRequest, err.Error()))
	}
	pending, err := s.investments.Prepare(c.Request().Context(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, pending))
}

func (s *Server) CancelInvestment(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return badRequest(c, "index must be a non-negative integer")
	}
	chainID, err := chainIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	account, err := addressParam(c, "account")
	if err != nil {
		return badRequest(c, err.Error())
	}
	pending, err := s.investments.PrepareCancel(c.Request().Context(), chainID, account, index)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, pending))
}

func (s *Server) PrepareWithdraw(c echo.Context) error {
	var req types.WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, MsgInvalidRequest)
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithDetails(MsgInvalidRequest, err.Error()))
	}
	pending, err := s.investments.PrepareWithdraw(c.Request().Context(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, pending))
}

func operationID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

func (s *Server) GetOperation(c echo.Context) error {
	id, ok := operationID(c)
	if !ok {
		return badRequest(c, "invalid operation id")
	}
	pending, err := s.investments.Pending(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, pending))
}

func (s *Server) SubmitOperation(c echo.Context) error {
	id, ok := operationID(c)
	if !ok {
		return badRequest(c, "invalid operation id")
	}
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, MsgInvalidRequest)
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithDetails(MsgInvalidRequest, err.Error()))
	}

	res, err := s.investments.Complete(c.Request().Context(), id, req.Signature)
	var pErr *invest.PartialFailureError
	if errors.As(err, &pErr) && res != nil {
		resp := NewSuccessResponse(http.StatusAccepted, PartialFailure{Result: *res, RetryTaskID: pErr.RetryTaskID})
		resp.Error = ErrorResponse{Message: MsgTriggerNotRegistered, DetailedResponse: pErr.Err.Error()}
		return c.JSON(http.StatusAccepted, resp)
	}
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, res))
}

func (s *Server) GetVaultBalance(c echo.Context) error {
	chainID, err := chainIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	account, err := addressParam(c, "account")
	if err != nil {
		return badRequest(c, err.Error())
	}
	vault, err := addressParam(c, "vault")
	if err != nil {
		return badRequest(c, err.Error())
	}
	balance, err := s.investments.VaultBalance(c.Request().Context(), chainID, account, vault)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, balance))
}

func (s *Server) GetQuote(c echo.Context) error {
	chainID, err := chainIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	tokenIn, err := addressParam(c, "tokenIn")
	if err != nil {
		return badRequest(c, err.Error())
	}
	tokenOut, err := addressParam(c, "tokenOut")
	if err != nil {
		return badRequest(c, err.Error())
	}
	amount := c.QueryParam("amount")
	if err := chain.CheckAmount(amount); err != nil {
		return badRequest(c, err.Error())
	}
	if d, err := decimal.NewFromString(amount); err != nil || !d.IsPositive() {
		return badRequest(c, "amount must be a positive decimal")
	}
	var fee uniswap.FeeAmount
	if raw := c.QueryParam("fee"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || !uniswap.FeeAmount(v).Valid() {
			return badRequest(c, "fee must be one of 100, 500, 3000, 10000")
		}
		fee = uniswap.FeeAmount(v)
	}
	quote, err := s.investments.Quote(c.Request().Context(), chainID, tokenIn, tokenOut, amount, fee)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, quote))
}
