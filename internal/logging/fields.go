package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CallFields 提供单次调用的标识字段，贯穿 hook、缓存与发送日志。
func CallFields(api, method, callID string) logrus.Fields {
	return logrus.Fields{
		"api":     api,
		"method":  method,
		"call_id": callID,
	}
}

// OutcomeFields 描述调用结束时的状态。
func OutcomeFields(status int, result string, cacheHit bool, elapsedMs int64) logrus.Fields {
	return logrus.Fields{
		"status":     status,
		"result":     result,
		"cache_hit":  cacheHit,
		"elapsed_ms": elapsedMs,
	}
}
