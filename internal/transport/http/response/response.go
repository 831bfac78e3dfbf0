package response

import "github.com/gin-gonic/gin"

const (
	CodeOK             = 0
	CodeBadRequest     = 40000
	CodeUnauthorized   = 40100
	CodeInternalServer = 50000
)

// APIResponse is the envelope used under /api/v1.
type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// PlainError writes the bare {"error": message} body served on the upload route.
func PlainError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, gin.H{"error": message})
}

// Classes writes {"classes": [...]} with 200.
func Classes(c *gin.Context, classes []string) {
	if classes == nil {
		classes = []string{}
	}
	c.JSON(200, gin.H{"classes": classes})
}
