package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"custody/internal/ledger"
	"custody/pkg/response"
)

type errorMapping struct {
	status int
	code   int
}

var errorMappings = map[ledger.Code]errorMapping{
	ledger.CodeInvalidAmount:        {http.StatusBadRequest, response.CodeInvalidAmount},
	ledger.CodeInvalidNetwork:       {http.StatusBadRequest, response.CodeInvalidNetwork},
	ledger.CodeInvalidAddress:       {http.StatusBadRequest, response.CodeInvalidAddress},
	ledger.CodeWithdrawLocked:       {http.StatusForbidden, response.CodeWithdrawLocked},
	ledger.CodeNotFound:             {http.StatusNotFound, response.CodeNotFound},
	ledger.CodeAlreadyProcessed:     {http.StatusConflict, response.CodeAlreadyProcessed},
	ledger.CodeInsufficientFunds:    {http.StatusUnprocessableEntity, response.CodeInsufficientFunds},
	ledger.CodeStorageFault:         {http.StatusInternalServerError, response.CodeServerError},
	ledger.CodeActivityInconsistent: {http.StatusOK, response.CodeActivityInconsistent},
}

// renderError 业务错误按错误码返回；账本已提交但动态缺失时仍带上结果
func renderError(c *gin.Context, log zerolog.Logger, err error, data interface{}) {
	code := ledger.CodeOf(err)
	mapping, ok := errorMappings[code]
	if !ok {
		mapping = errorMappings[ledger.CodeStorageFault]
	}

	message := err.Error()
	var be *ledger.Error
	if errors.As(err, &be) {
		message = be.Message
	}
	if code == ledger.CodeStorageFault {
		// 内部错误细节只写日志
		log.Error().Err(err).Str("path", c.FullPath()).Msg("请求处理失败")
		message = ledger.ErrStorageFault.Message
	}
	if code != ledger.CodeActivityInconsistent {
		data = nil
	} else {
		message = ledger.ErrActivityInconsistent.Message
	}

	response.Fail(c, mapping.status, mapping.code, string(code), message, data)
}
