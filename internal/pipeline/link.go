package pipeline

import "context"

// linkSignals 把多个取消来源合并为一个 context。返回的释放函数解除全部
// AfterFunc 注册并取消合并后的 context，调用后不再持有任何来源的引用。
func linkSignals(signals []context.Context) (context.Context, context.CancelFunc) {
	linked, cancel := context.WithCancelCause(context.Background())
	stops := make([]func() bool, 0, len(signals))
	for _, signal := range signals {
		if signal.Err() != nil {
			cancel(context.Cause(signal))
			break
		}
		stops = append(stops, context.AfterFunc(signal, func() {
			cancel(context.Cause(signal))
		}))
	}
	return linked, func() {
		for _, stop := range stops {
			stop()
		}
		cancel(nil)
	}
}
