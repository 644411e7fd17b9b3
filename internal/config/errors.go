package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// apiField 拼接 API 级字段路径，输出 API[xxx].Field 形式。
func apiField(name, field string) string {
	return fmt.Sprintf("API[%s].%s", name, field)
}

// actionField 拼接动作级字段路径，输出 API[xxx].Action[yyy].Field 形式。
func actionField(api, action, field string) string {
	return fmt.Sprintf("API[%s].Action[%s].%s", api, action, field)
}

// tokenField 拼接令牌字段路径。
func tokenField(name, field string) string {
	return fmt.Sprintf("Token[%s].%s", name, field)
}
