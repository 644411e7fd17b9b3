// Package validation 负责参数与返回值的声明式约束校验，规则沿用
// go-playground/validator 的 tag 语法，失败统一转换为 errs.ValidationError。
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/apicall/apicall/internal/errs"
)

// Validator 可并发复用，内部缓存结构体元数据。
type Validator struct {
	v *validator.Validate
}

// New 创建校验器，字段名优先使用 json tag，便于错误信息与线上字段一致。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Parameter 校验单个参数：先按 constraint 校验值本身，再对结构体做属性级校验。
func (val *Validator) Parameter(name string, value any, constraint string) error {
	if constraint = strings.TrimSpace(constraint); constraint != "" {
		if err := val.v.Var(value, constraint); err != nil {
			return &errs.ValidationError{Member: name, Err: describe(err)}
		}
	}
	if err := val.structLevel(value); err != nil {
		return &errs.ValidationError{Member: joinMember(name, err.member), Err: err.cause}
	}
	return nil
}

// Value 对物化后的返回值执行属性级校验，非结构体直接通过。
func (val *Validator) Value(value any) error {
	if err := val.structLevel(value); err != nil {
		return &errs.ValidationError{Member: err.member, Err: err.cause}
	}
	return nil
}

type fieldFailure struct {
	member string
	cause  error
}

func (val *Validator) structLevel(value any) *fieldFailure {
	if !isStruct(value) {
		return nil
	}
	err := val.v.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return &fieldFailure{member: trimRoot(first.Namespace()), cause: describe(err)}
	}
	return &fieldFailure{member: "", cause: err}
}

func isStruct(value any) bool {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct
}

// describe 将 validator 的错误压缩成 "field:tag" 列表，避免暴露内部类型。
func describe(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		if field := trimRoot(fe.Namespace()); field != "" {
			parts = append(parts, field+" failed "+tag)
		} else {
			parts = append(parts, "failed "+tag)
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

// trimRoot 去掉 Namespace 中的根类型名，例如 "User.Address.City" → "Address.City"。
func trimRoot(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return ""
}

func joinMember(param, field string) string {
	if field == "" {
		return param
	}
	return param + "." + field
}
