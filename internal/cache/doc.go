// Package cache 实现调用链路的响应缓存。Subsystem 向动作的缓存策略 hook 询问读写模式与缓存键，
// 查询可插拔的 Provider，命中时由 Entry 合成 *http.Response 并跳过网络发送。
// 过期由 Provider（memory、disk、bolt）负责；缓存出错只记录日志，不会让调用失败。
package cache
