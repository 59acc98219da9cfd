package relay

import (
	"context"
	stdErrors "errors"

	"golang.org/x/sync/errgroup"
)

// Fanout 把同一事件并发投递到多个 sink。
type Fanout struct {
	sinks []Sink
}

// NewFanout 组合多个 sink，nil 会被忽略。
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish 等待所有 sink 完成，返回合并后的错误。单个 sink 失败不影响其他 sink。
func (f *Fanout) Publish(ctx context.Context, event Event) error {
	errs := make([]error, len(f.sinks))
	var g errgroup.Group
	for i, sink := range f.sinks {
		i, sink := i, sink
		g.Go(func() error {
			errs[i] = sink.Publish(ctx, event)
			return nil
		})
	}
	_ = g.Wait()
	return stdErrors.Join(errs...)
}

// Close 关闭全部 sink。
func (f *Fanout) Close() error {
	errs := make([]error, 0, len(f.sinks))
	for _, s := range f.sinks {
		errs = append(errs, s.Close())
	}
	return stdErrors.Join(errs...)
}
