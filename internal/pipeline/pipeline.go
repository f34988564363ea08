// Package pipeline runs one fetch → parse → filter → format → post cycle
// over every configured source.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"releasepush/internal/domain"
	"releasepush/internal/filter"
	"releasepush/internal/format"
	"releasepush/internal/notify"
	"releasepush/internal/parse"
	"releasepush/internal/source"
	logx "releasepush/pkg/logx"
)

// Fetcher retrieves one raw document.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	Fetcher Fetcher
	Sink    notify.Sink
	Log     logx.Logger
	// Location reports the timezone that defines "today"; nil means Local.
	// It is consulted on every run so timezone reloads take effect.
	Location func() *time.Location
	// Now overrides the clock in tests.
	Now func() time.Time
}

type Pipeline struct {
	fetch Fetcher
	sink  notify.Sink
	log   logx.Logger
	loc   func() *time.Location
	now   func() time.Time
}

func New(opt Options) *Pipeline {
	p := &Pipeline{fetch: opt.Fetcher, sink: opt.Sink, log: opt.Log, loc: opt.Location, now: opt.Now}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	if p.loc == nil {
		p.loc = func() *time.Location { return time.Local }
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Report summarizes one run.
type Report struct {
	Sources      int
	SourceErrors int
	Fetched      int
	Accepted     int
	Rejected     map[string]int
	Posted       int
	Failed       int
}

func (r Report) RejectedTotal() int {
	n := 0
	for _, v := range r.Rejected {
		n += v
	}
	return n
}

// RejectedSummary renders rejections as "rule=count" pairs sorted by rule.
func (r Report) RejectedSummary() string {
	keys := make([]string, 0, len(r.Rejected))
	for k := range r.Rejected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(r.Rejected[k]))
	}
	return b.String()
}

// Run processes every source of cfg in order. It never fails as a whole:
// fetch, parse and post errors are logged, counted and contained to their
// source or item.
func (p *Pipeline) Run(ctx context.Context, cfg domain.Config) Report {
	cfg = cfg.WithDefaults()
	log := logx.FromContext(ctx, p.log)
	rep := Report{Rejected: map[string]int{}}
	now := p.now().In(p.loc())
	base := filter.Default(cfg.ReferenceLanguage)

	for _, src := range cfg.Sources {
		if ctx.Err() != nil {
			log.Warn("run aborted", logx.Err(ctx.Err()), logx.Int("sources_left", len(cfg.Sources)-rep.Sources))
			break
		}
		rep.Sources++
		p.runSource(ctx, log.With(logx.String("source", src.Label())), cfg, src, base, now, &rep)
	}
	return rep
}

func (p *Pipeline) runSource(ctx context.Context, log logx.Logger, cfg domain.Config, src domain.SourceConfig, base filter.Chain, now time.Time, rep *Report) {
	url := source.ExpandURL(src.URL, now)
	data, err := p.fetch.Get(ctx, url)
	if err != nil {
		rep.SourceErrors++
		fields := []logx.Field{logx.String("url", url), logx.Err(err)}
		var fe *source.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			fields = append(fields, logx.Int("status", fe.StatusCode))
		}
		log.Warn("fetch failed; source skipped", fields...)
		return
	}

	items, err := parse.Parse(src.Kind, data, parse.Options{
		Category: src.SourceCategory(),
		BaseURL:  url,
		Ref:      now,
		Log:      log,
	})
	if err != nil {
		rep.SourceErrors++
		log.Warn("parse failed; source skipped", logx.String("url", url), logx.Err(err))
		return
	}
	rep.Fetched += len(items)

	chain := base
	if src.MatchToday {
		chain = chain.Prepend(filter.ReleasedOn(parse.DayKey(now)))
	}

	accepted := make([]domain.Item, 0, len(items))
	for _, it := range items {
		d := chain.Evaluate(it, cfg.Filters(it.Category))
		if !d.Accepted {
			rep.Rejected[d.Rule]++
			log.Trace("item rejected", logx.String("title", it.Title), logx.String("rule", d.Rule))
			continue
		}
		accepted = append(accepted, it)
	}
	rep.Accepted += len(accepted)
	log.Debug("source evaluated", logx.Int("items", len(items)), logx.Int("accepted", len(accepted)))

	if src.Digest {
		if len(accepted) == 0 {
			log.Info("nothing to post today")
			return
		}
		p.post(ctx, log, format.Digest(accepted, format.DigestTitle), rep)
		return
	}
	for _, it := range accepted {
		p.post(ctx, log, format.Render(it, cfg.ImageBase), rep)
	}
}

func (p *Pipeline) post(ctx context.Context, log logx.Logger, msg domain.Message, rep *Report) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Post(ctx, msg); err != nil {
		rep.Failed++
		log.Warn("notification post failed", logx.String("title", msg.Title), logx.Err(err))
		return
	}
	rep.Posted++
}
