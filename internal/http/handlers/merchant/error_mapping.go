package merchant

import (
	"errors"

	"github.com/paygate-next/internal/http/response"
	"github.com/paygate-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var orderCommonErrorRules = []mappedHandlerError{
	{target: service.ErrMerchantDisabled, code: response.CodeForbidden, msg: "merchant disabled"},
	{target: service.ErrMerchantNoPerm, code: response.CodeForbidden, msg: "merchant permission denied"},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrOrderStateInvalid, code: response.CodeBadRequest, msg: "order state invalid"},
}

var orderCreateErrorRules = []mappedHandlerError{
	{target: service.ErrOrderDuplicate, code: response.CodeConflict, msg: "out_trade_no already used"},
	{target: service.ErrOrderAmountInvalid, code: response.CodeBadRequest, msg: "total_amount out of bounds"},
	{target: service.ErrSubjectInvalid, code: response.CodeBadRequest, msg: "subject invalid"},
	{target: service.ErrBuyerIdentInvalid, code: response.CodeBadRequest, msg: "buyer identity invalid"},
	{target: service.ErrCloseTimeInvalid, code: response.CodeBadRequest, msg: "close_time out of range"},
	{target: service.ErrURLInvalid, code: response.CodeBadRequest, msg: "notify_url or return_url invalid"},
	{target: service.ErrChannelUnavailable, code: response.CodeBadRequest, msg: "no usable payment channel"},
	{target: service.ErrOrderInvalid, code: response.CodeBadRequest, msg: "order params invalid"},
	{target: service.ErrGatewayFailed, code: response.CodeBadRequest, msg: "gateway call failed"},
}

var refundCreateErrorRules = []mappedHandlerError{
	{target: service.ErrRefundDuplicate, code: response.CodeConflict, msg: "out_refund_no already used"},
	{target: service.ErrRefundExceeded, code: response.CodeBadRequest, msg: "refund amount exceeds remainder"},
	{target: service.ErrRefundInvalid, code: response.CodeBadRequest, msg: "refund params invalid"},
	{target: service.ErrRefundStateInvalid, code: response.CodeBadRequest, msg: "refund state invalid"},
	{target: service.ErrRefundNotFound, code: response.CodeNotFound, msg: "refund not found"},
	{target: service.ErrGatewayFailed, code: response.CodeBadRequest, msg: "gateway call failed"},
}

var notifyRedeliverErrorRules = []mappedHandlerError{
	{target: service.ErrNotifyNotFound, code: response.CodeBadRequest, msg: "nothing to redeliver"},
}

var notifyQueryErrorRules = []mappedHandlerError{
	{target: service.ErrRefundNotFound, code: response.CodeNotFound, msg: "refund not found"},
}

func respondOrderCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, append(orderCreateErrorRules, orderCommonErrorRules...), response.CodeInternal, "order create failed")
}

func respondOrderQueryError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCommonErrorRules, response.CodeInternal, "order query failed")
}

func respondOrderCloseError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCommonErrorRules, response.CodeInternal, "order close failed")
}

func respondRefundError(c *gin.Context, err error) {
	respondWithMappedError(c, err, append(refundCreateErrorRules, orderCommonErrorRules...), response.CodeInternal, "refund failed")
}

func respondNotifyRedeliverError(c *gin.Context, err error) {
	respondWithMappedError(c, err, append(notifyRedeliverErrorRules, orderCommonErrorRules...), response.CodeInternal, "redeliver failed")
}

func respondNotifyQueryError(c *gin.Context, err error) {
	respondWithMappedError(c, err, append(notifyQueryErrorRules, orderCommonErrorRules...), response.CodeInternal, "notification query failed")
}
