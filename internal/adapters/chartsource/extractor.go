package chartsource

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"oidworker/internal/domain/options"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

const (
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://www.cmegroup.com/"

	intradayTab = "#MainContent_ucViewControl_IntegratedV2VExpectedRange_lbIntradayVolume"
	oiTab       = "#MainContent_ucViewControl_IntegratedV2VExpectedRange_lbOI"
)

// payloadScript collects the first Highcharts chart and the surrounding page text
const payloadScript = `(() => {
  const hc = globalThis.Highcharts;
  const chart = hc && hc.charts && hc.charts.find(Boolean);
  if (!chart) return null;
  const norm = (s) => String(s || "").replace(/\u00a0/g, " ");
  const points = (series) => ((series.options && series.options.data) || []).map((d) =>
    Array.isArray(d) ? { x: d[0], y: d[1] } : { x: d && d.x, y: d && d.y });
  const out = {
    title: (chart.title && chart.title.textStr) || "",
    subtitle: (chart.subtitle && chart.subtitle.textStr) || "",
    fullText: norm(document.body && document.body.innerText),
    frameTexts: [],
    html: document.documentElement ? document.documentElement.outerHTML : "",
    optionTexts: Array.from(document.querySelectorAll("select option"))
      .map((o) => norm(o.textContent).trim()).filter((t) => t.length > 0),
    put: [], call: [], vol: []
  };
  for (const f of Array.from(document.querySelectorAll("iframe"))) {
    try { out.frameTexts.push(norm(f.contentDocument.body.innerText)); } catch (e) {}
  }
  for (const s of chart.series || []) {
    const name = String(s.name || "").toLowerCase();
    if (name.includes("call")) out.call = points(s);
    else if (name.includes("put")) out.put = points(s);
    else if (name.includes("vol")) out.vol = points(s);
  }
  const strong = document.querySelector("strong");
  const parent = norm(strong && strong.parentElement && strong.parentElement.textContent);
  out.seriesName = parent.replace("Expiration:", "").trim();
  out.expirationLabel = parent.trim();
  return out;
})()`

// Config configures the extractor
type Config struct {
	DevToolsURL        string
	Timeout            time.Duration
	RenderWait         time.Duration
	RequirePositiveDTE bool
	SessionsPerMinute  int
	VenueLocation      *time.Location
}

// Extractor reads option chart views through a headless browser's DevTools endpoint
type Extractor struct {
	cfg      Config
	devtools *devtools
	limiter  *rate.Limiter
	now      func() time.Time
	log      *logger.Logger
}

var _ options.Extractor = (*Extractor)(nil)

// New creates an extractor. SessionsPerMinute <= 0 disables pacing.
func New(cfg Config) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.VenueLocation == nil {
		cfg.VenueLocation = time.UTC
	}
	e := &Extractor{
		cfg: cfg,
		devtools: &devtools{
			baseURL: strings.TrimRight(cfg.DevToolsURL, "/"),
			http:    &http.Client{Timeout: 10 * time.Second},
		},
		now: time.Now,
		log: logger.Get().With("component", "chartsource"),
	}
	if cfg.SessionsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.SessionsPerMinute)), 1)
	}
	return e
}

func tabSelector(view options.ViewType) (string, error) {
	switch view {
	case options.ViewIntraday:
		return intradayTab, nil
	case options.ViewOI:
		return oiTab, nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidInput, "unknown view %q", view)
	}
}

// Extract opens url in a fresh browser target, switches to the view's tab and reads the chart
func (e *Extractor) Extract(ctx context.Context, url string, view options.ViewType, tradeDate string) (*options.ExtractedView, error) {
	selector, err := tabSelector(view)
	if err != nil {
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "wait for browser slot")
		}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	t, err := e.devtools.newTarget(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.devtools.closeTarget(closeCtx, t.ID); err != nil {
			e.log.Warnw("Failed to close browser target", "target", t.ID, "error", err)
		}
	}()

	p, err := dialPage(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return nil, err
	}
	defer p.close()

	payload, err := e.readPayload(ctx, p, url, selector)
	if err != nil {
		return nil, err
	}

	extracted, err := Build(payload, BuildOptions{
		View:               view,
		TradeDate:          tradeDate,
		RequirePositiveDTE: e.cfg.RequirePositiveDTE,
		Now:                e.now(),
		VenueLocation:      e.cfg.VenueLocation,
	})
	if err != nil {
		return nil, err
	}

	e.log.Debugw("Chart extracted",
		"view", view,
		"trade_date", tradeDate,
		"series", extracted.SeriesName,
		"bars", len(extracted.Bars),
	)
	return extracted, nil
}

func (e *Extractor) readPayload(ctx context.Context, p *page, url, selector string) (*Payload, error) {
	if err := p.call(ctx, "Network.enable", nil, nil); err != nil {
		return nil, err
	}
	if err := p.call(ctx, "Network.setUserAgentOverride", map[string]string{"userAgent": userAgent}, nil); err != nil {
		return nil, err
	}
	if err := p.call(ctx, "Network.setExtraHTTPHeaders", map[string]interface{}{
		"headers": map[string]string{"Referer": referer},
	}, nil); err != nil {
		return nil, err
	}
	if err := p.navigate(ctx, url); err != nil {
		return nil, err
	}

	query := "document.querySelector(" + strconv.Quote(selector) + ")"
	if err := p.waitFor(ctx, query, 250*time.Millisecond); err != nil {
		return nil, err
	}
	if err := p.evaluate(ctx, query+".click()", nil); err != nil {
		return nil, errors.Wrap(err, "switch chart tab")
	}

	if e.cfg.RenderWait > 0 {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "wait for chart render")
		case <-time.After(e.cfg.RenderWait):
		}
	}

	var payload *Payload
	if err := p.evaluate(ctx, payloadScript, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.Wrap(errors.ErrExtractionFailed, "Highcharts payload unavailable")
	}
	return payload, nil
}
