package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码，与 ledger.Code 一一对应
const (
	CodeInvalidAmount        = 1001
	CodeInvalidNetwork       = 1002
	CodeInvalidAddress       = 1003
	CodeWithdrawLocked       = 1004
	CodeAlreadyProcessed     = 1005
	CodeInsufficientFunds    = 1006
	CodeActivityInconsistent = 1007
)

type Response struct {
	Code    int         `json:"code"`
	Error   string      `json:"error,omitempty"` // 稳定错误码字符串，如 WITHDRAW_LOCKED
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Fail 带 HTTP 状态码的错误响应，data 可为空
func Fail(c *gin.Context, status, code int, errCode, message string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Error:   errCode,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, CodeParamError, "", message, nil)
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, CodeUnauthorized, "", message, nil)
}

func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, CodeForbidden, "", message, nil)
}

func ServerError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, CodeServerError, "", message, nil)
}
