// Package builtin 提供开箱即用的 hook：参数的默认 path/query 映射、
// Header/JSON/表单/原始内容/文件参数、取消信号与自描述参数，
// JSON/XML/原始透传三个默认返回 hook，以及超时与日志过滤器。
package builtin
