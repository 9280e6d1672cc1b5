package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var configureBindingOnce sync.Once

// configureBinding makes gin reject unknown JSON fields and report
// validation failures by their JSON names.
func configureBinding() {
	configureBindingOnce.Do(func() {
		binding.EnableDecoderDisallowUnknownFields = true
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(fieldName)
		}
	})
}

func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

type fieldError struct {
	Code  string `json:"code"`
	Field string `json:"field"`
	Param string `json:"param,omitempty"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeBindError(c, err)
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		writeBindError(c, err)
		return false
	}
	return true
}

func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fieldError{
				Code:  "ERR_" + strings.ToUpper(fe.Tag()),
				Field: fe.Field(),
				Param: fe.Param(),
			})
		}
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    "INVALID_INPUT",
			Message: "request validation failed",
			Details: map[string]any{"fields": fields},
		})
		return
	}
	writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "invalid request: "+err.Error())
}
