package bandit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/psantana5/bandit/pkg/logging"
	"github.com/psantana5/bandit/pkg/metrics"
)

// Point is one reported metric value.
type Point struct {
	TagName string  `json:"tag_name"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// NormalizeTag replaces spaces with hyphens.
func NormalizeTag(tag string) string {
	return strings.ReplaceAll(tag, " ", "-")
}

// NewPoint validates x and y and builds a point. Both must be Go numbers or
// json.Number values; NaN and infinities are rejected because they have no
// JSON encoding.
func NewPoint(tag string, x, y any) (Point, error) {
	xf, err := toFloat(x)
	if err != nil {
		return Point{}, fmt.Errorf("%w: `x` parameter is not a number: %v", ErrValidation, err)
	}
	yf, err := toFloat(y)
	if err != nil {
		return Point{}, fmt.Errorf("%w: `y` parameter is not a number: %v", ErrValidation, err)
	}
	return Point{TagName: NormalizeTag(tag), X: xf, Y: yf}, nil
}

// DryRunAck is the acknowledgement returned when a point is only printed.
func DryRunAck() map[string]any {
	return map[string]any{"status": "OK", "message": "DRY RUN"}
}

// Report reports y under tag with x = 0.
func (c *Client) Report(ctx context.Context, tag string, y any) (map[string]any, error) {
	return c.ReportPoint(ctx, tag, 0, y)
}

// Stream is an alias of Report for time-series style callers.
func (c *Client) Stream(ctx context.Context, tag string, y any) (map[string]any, error) {
	return c.Report(ctx, tag, y)
}

// ReportPoint reports a metric point. Outside a live remote job the point is
// printed and a dry-run acknowledgement is returned. Inside a job the point is
// first appended to the charts log and then sent to the server; the log line
// stays even if sending fails.
func (c *Client) ReportPoint(ctx context.Context, tag string, x, y any) (map[string]any, error) {
	point, err := NewPoint(tag, x, y)
	if err != nil {
		return nil, err
	}
	line, err := json.Marshal(point)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal point: %v", ErrSerialization, err)
	}

	if !c.cfg.HasJob() {
		if err := c.console.Write(line); err != nil {
			return nil, err
		}
		c.metrics.PointReported(metrics.PointDryRun)
		return DryRunAck(), nil
	}

	if err := c.charts.Write(line); err != nil {
		c.logger.Warn("failed to append metric point to charts log", logging.Fields{
			"tag":   point.TagName,
			"error": err.Error(),
		})
	}

	ack, err := c.putReport(ctx, point)
	if err != nil {
		c.metrics.PointReported(metrics.PointFailed)
		return nil, err
	}
	c.metrics.PointReported(metrics.PointSent)
	return ack, nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q", n.String())
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%v (%T)", v, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v has no JSON representation", f)
	}
	return f, nil
}
