package pkg

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/dogmatch/internal/domain"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ValidationErrorResponse reports per-field failures, keyed by the field's
// JSON name.
type ValidationErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// Success writes data with a 200.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: data})
}

// List writes one page of results, usually built with CursorPage.
func List(c *gin.Context, page any) {
	Success(c, page)
}

// Error writes err with the status its domain code maps to. Only the
// message of a *domain.AppError reaches the client; anything else reads
// "internal error". Server errors are attached to c for the request log.
func Error(c *gin.Context, err error) {
	status := domain.HTTPStatusCode(err)
	message := "internal error"
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, Response{Code: status, Message: message})
}

// ErrorFormat is the ginx error formatter, so auth and rate-limit failures
// share the envelope.
func ErrorFormat(status int, message string) any {
	return Response{Code: status, Message: message}
}

// ValidationError writes a 400 for err. Field names fall back to the
// lowercased Go name.
func ValidationError(c *gin.Context, err error) {
	writeBindError(c, err, nil)
}

// BindAndValidate binds the request into obj. On failure it writes the 400
// and returns false, naming fields by obj's json tags.
//
//	if !pkg.BindAndValidate(c, &req) { return }
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		writeBindError(c, err, obj)
		return false
	}
	return true
}

func writeBindError(c *gin.Context, err error, obj any) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		// The parser's message stays server-side.
		c.JSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: "bad request"})
		return
	}

	names := jsonNames(obj)
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		name, ok := names[fe.StructField()]
		if !ok {
			name = strings.ToLower(fe.Field())
		}
		fields[name] = fieldMessage(fe)
	}
	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Code:    http.StatusBadRequest,
		Message: "validation error",
		Errors:  fields,
	})
}

func fieldMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		return "Must be at least " + fe.Param() + unit
	case "max":
		return "Must be at most " + fe.Param() + unit
	case "oneof":
		return "Must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	}
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// jsonNames maps the Go field names of obj's struct type to their json
// names. Fields without a usable tag are left out.
func jsonNames(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	names := make(map[string]string, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name != "" && name != "-" {
			names[f.Name] = name
		}
	}
	return names
}
