package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPending = "pending"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"errorCode,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Status: StatusSuccess, Data: data})
}

// Pending reports a completed action whose reward transfer is still unresolved.
func Pending(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Status: StatusPending, Data: data})
}

func Error(c *gin.Context, httpStatus int, message, code string, data interface{}) {
	c.AbortWithStatusJSON(httpStatus, Envelope{
		Status:    StatusError,
		Data:      data,
		Error:     message,
		ErrorCode: code,
	})
}
