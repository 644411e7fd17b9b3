// Package server 承载 Fiber HTTP 网关：把 POST /call/:action 翻译为一次具名调用，
// 并暴露 /-/actions、/-/metrics、/-/healthz 诊断接口。
// 调用核心通过 Caller 接口注入，测试中可以替换为假实现。
package server
