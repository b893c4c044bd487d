package tabular

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rangira/stacklens/pkg/httputil"
	"github.com/rangira/stacklens/pkg/metrics"
)

// Stage customizes one pipeline step for an entity.
type Stage func(Query) Query

// Config declares one exposed table or view: its identity, field/label
// pairing, page size, and optional stage overrides. Configs are built once
// at startup and never mutated afterwards.
type Config struct {
	Name         string // route segment and metrics label
	Table        string
	InputFields  []string
	OutputLabels []string
	PageSize     int // defaults to 10
	ListOnly     bool

	// SelectOverride replaces the default projection of InputFields, used
	// by aggregate views that select computed expressions.
	SelectOverride func(RowSource) Query
	// FilterStage adds a fixed predicate after the dynamic filter runs.
	FilterStage Stage
	GroupStage  Stage
	OrderStage  Stage
	// Postprocess layers entity-specific keys onto the envelope.
	Postprocess    func(*Envelope)
	Postprocessors map[string]Postprocessor
}

// Controller runs the fixed read pipeline for one entity configuration.
type Controller struct {
	cfg    Config
	src    RowSource
	logger *zap.Logger
}

// NewController validates the configuration invariants: field and label
// lists must pair up, and postprocessors may only target input fields.
func NewController(cfg Config, src RowSource, logger *zap.Logger) (*Controller, error) {
	if len(cfg.InputFields) != len(cfg.OutputLabels) {
		return nil, fmt.Errorf("tabular: %s: %d input fields but %d output labels",
			cfg.Name, len(cfg.InputFields), len(cfg.OutputLabels))
	}
	for field := range cfg.Postprocessors {
		if !slices.Contains(cfg.InputFields, field) {
			return nil, fmt.Errorf("tabular: %s: postprocessor for unknown field %q", cfg.Name, field)
		}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, src: src, logger: logger}, nil
}

// List handles a collection request: the six pipeline stages run in
// sequence and the result is written as an envelope. The total row count
// is taken from the ordered, filtered query before slicing so pagination
// metadata reflects the full result set.
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	q := c.selectStage()
	filter := NewQueryFilter(c.cfg.InputFields)
	q = filter.Apply(q, r.URL.Query())
	if c.cfg.FilterStage != nil {
		q = c.cfg.FilterStage(q)
	}
	if c.cfg.GroupStage != nil {
		q = c.cfg.GroupStage(q)
	}
	if c.cfg.OrderStage != nil {
		q = c.cfg.OrderStage(q)
	}

	count, err := q.Count(ctx)
	if err != nil {
		c.fail(w, "list", err)
		return
	}

	pager := Paginator{PageSize: c.cfg.PageSize}
	rows, err := pager.Paginate(q, pageParam(r)).Rows(ctx)
	if err != nil {
		c.fail(w, "list", err)
		return
	}

	env := Envelope{
		Rows:     FormatRows(rows, c.cfg.InputFields, c.cfg.OutputLabels, c.cfg.Postprocessors),
		Filter:   filter.Criteria(),
		RowCount: count,
		PageSize: pager.PageSize,
	}
	if c.cfg.Postprocess != nil {
		c.cfg.Postprocess(&env)
	}

	metrics.TableRequests.WithLabelValues(c.cfg.Name, "list", "ok").Inc()
	metrics.QueryDuration.WithLabelValues(c.cfg.Name, "list").Observe(time.Since(start).Seconds())
	httputil.JSON(w, http.StatusOK, env)
}

// Get handles a single-identifier request with a direct primary-key
// lookup. The collection pipeline is deliberately bypassed: no filtering,
// pagination, or link formatting applies to a flat row.
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		httputil.Error(w, http.StatusBadRequest, "invalid id")
		return
	}

	row, err := c.src.Get(r.Context(), id, c.cfg.InputFields)
	if errors.Is(err, ErrNotFound) {
		metrics.TableRequests.WithLabelValues(c.cfg.Name, "get", "miss").Inc()
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("%s %d not found", c.cfg.Name, id))
		return
	}
	if err != nil {
		c.fail(w, "get", err)
		return
	}

	metrics.TableRequests.WithLabelValues(c.cfg.Name, "get", "ok").Inc()
	metrics.QueryDuration.WithLabelValues(c.cfg.Name, "get").Observe(time.Since(start).Seconds())
	httputil.JSON(w, http.StatusOK, row)
}

func (c *Controller) selectStage() Query {
	if c.cfg.SelectOverride != nil {
		return c.cfg.SelectOverride(c.src)
	}
	return c.src.Select(Cols(c.cfg.InputFields...)...)
}

func (c *Controller) fail(w http.ResponseWriter, mode string, err error) {
	c.logger.Error("query failed", zap.String("entity", c.cfg.Name), zap.String("mode", mode), zap.Error(err))
	metrics.TableRequests.WithLabelValues(c.cfg.Name, mode, "error").Inc()
	httputil.Error(w, http.StatusInternalServerError, "database query error")
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return page
}
