package api

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	vnPhonePattern = regexp.MustCompile(`^(0|\+84)(3|5|7|8|9)[0-9]{8}$`)
	registerOnce   sync.Once
)

// RegisterValidators adds the custom binding tags to gin's validator
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("vnphone", validateVNPhone)
		}
	})
}

// validateVNPhone accepts mobile numbers written as 0xxxxxxxxx or +84xxxxxxxxx
func validateVNPhone(fl validator.FieldLevel) bool {
	return vnPhonePattern.MatchString(fl.Field().String())
}
