package dto

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterValidators 注册提醒 DTO 使用的自定义校验标签
//
//	hhmm     24 小时制 HH:mm，必须两位数
//	weekday  英文星期全称，首字母大写
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return IsHHMM(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		return IsWeekday(fl.Field().String())
	})
}

// IsHHMM 校验 HH:mm
func IsHHMM(s string) bool {
	if len(s) != 5 {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// IsWeekday 校验英文星期全称
func IsWeekday(s string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == s {
			return true
		}
	}
	return false
}
