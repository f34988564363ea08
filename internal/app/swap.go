package app

import (
	"context"
	"sync/atomic"

	"releasepush/internal/config"
	"releasepush/internal/domain"
	"releasepush/internal/notify"
	"releasepush/internal/pipeline"
	"releasepush/internal/source"
	logx "releasepush/pkg/logx"
)

// swapFetcher and swapSink let a config reload replace the HTTP client and
// the delivery driver without rebuilding the pipeline. A run that already
// loaded the old value keeps using it.

type fetcherBox struct{ f pipeline.Fetcher }

type swapFetcher struct{ v atomic.Value }

func (s *swapFetcher) Store(f pipeline.Fetcher) { s.v.Store(fetcherBox{f}) }

func (s *swapFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return s.v.Load().(fetcherBox).f.Get(ctx, url)
}

type sinkBox struct{ s notify.Sink }

type swapSink struct{ v atomic.Value }

func (s *swapSink) Store(sink notify.Sink) { s.v.Store(sinkBox{sink}) }

func (s *swapSink) Post(ctx context.Context, msg domain.Message) error {
	return s.v.Load().(sinkBox).s.Post(ctx, msg)
}

func buildFetcher(cfg config.HTTPConfig) (*source.Client, error) {
	opt, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return source.New(opt)
}

func buildSink(cfg config.NotifierConfig, log logx.Logger) (notify.Sink, error) {
	if !cfg.UsesTelegram() {
		return notify.LogSink{Log: log.With(logx.String("sink", "log"))}, nil
	}
	tc, err := cfg.Telegram()
	if err != nil {
		return nil, err
	}
	return notify.NewTelegram(tc, log)
}
