package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse defines the uniform envelope for API results.
type JSONResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Respond writes the envelope merged with any extra fields.
func Respond(ctx *gin.Context, status int, success bool, message string, extra gin.H) {
	if len(extra) == 0 {
		ctx.JSON(status, JSONResponse{Success: success, Message: message})
		return
	}
	body := gin.H{"success": success, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	ctx.JSON(status, body)
}

// Success returns a 200 envelope.
func Success(ctx *gin.Context, message string, extra gin.H) {
	Respond(ctx, 200, true, message, extra)
}

// Error returns a failure envelope with the given status.
func Error(ctx *gin.Context, status int, message string) {
	Respond(ctx, status, false, message, nil)
}

// Fail maps err through StatusOf/MessageOf and logs it server-side.
func Fail(ctx *gin.Context, err error, fallback string) {
	status := StatusOf(err)
	if status >= 500 {
		Sugar.Errorw(fallback, "path", ctx.Request.URL.Path, "request_id", ctx.GetString(RequestIDKey), "error", err)
	} else {
		Sugar.Debugw(fallback, "path", ctx.Request.URL.Path, "error", err)
	}
	msg := fallback
	if status < 500 {
		msg = MessageOf(err, fallback)
	}
	Error(ctx, status, msg)
}
